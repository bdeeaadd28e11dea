package chat

// Event types published to the feed.
const (
	EventPublic = "public"
	EventReport = "report"
	EventBan    = "ban"
	EventUnban  = "unban"
)

// Event is the payload published to the chat.<type> subjects for external
// observers. Private messages are never published.
type Event struct {
	Type  string `json:"type"`
	From  string `json:"from,omitempty"` // sender or reporter
	To    string `json:"to,omitempty"`   // report/ban target
	Text  string `json:"text,omitempty"`
	Count int    `json:"count,omitempty"` // report count for report/ban events
	Ts    int64  `json:"ts"`
}
