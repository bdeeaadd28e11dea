// Package protocol defines the line-oriented command grammar spoken between
// chat clients and the server. Every inbound line is classified into a
// Command by literal prefix; malformed commands carry a ParseError whose
// Notice is the corrective text sent back to the sender.
package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind discriminates the variants of Command.
type Kind int

const (
	KindPublic Kind = iota
	KindUsername
	KindStatus
	KindPrivate
	KindReport
	KindDelay
	KindCancel
	KindExit
)

var kindNames = [...]string{
	KindPublic:   "public",
	KindUsername: "username",
	KindStatus:   "status",
	KindPrivate:  "pm",
	KindReport:   "ban",
	KindDelay:    "delay",
	KindCancel:   "cancel",
	KindExit:     "exit",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Literal prefixes, checked in this order. "cancel " keeps its trailing
// space so that a bare "cancel" falls through to a public broadcast.
const (
	PrefixUsername = "username"
	PrefixStatus   = "status"
	PrefixPrivate  = "pm"
	PrefixReport   = "ban"
	PrefixDelay    = "delay"
	PrefixCancel   = "cancel "
	LineExit       = "exit"
)

// FireTimeLayout accepts "YYYY, MM, DD, HH, MM, SS" with or without zero
// padding.
const FireTimeLayout = "2006, 1, 2, 15, 4, 5"

// Usage notices sent back for malformed commands.
const (
	UsagePrivate  = `Invalid private message format. Use "pm recipient message"`
	UsageReport   = `Invalid report message format. Use "ban username"`
	UsageDelay    = `Invalid delayed message format. Use "delay text YYYY, MM, DD, HH, MM, SS"`
	UsageFireTime = `Invalid date format. Use "YYYY, MM, DD, HH, MM, SS"`
	UsageCancel   = `Invalid cancel delayed message format. Use "cancel id"`
	UsageUsername = `Invalid username format. Use "username - name"`
)

const (
	// ChunkSize is the number of bytes consumed by one receive in chunk
	// framing. Longer messages are truncated.
	ChunkSize = 255

	// MaxLineBytes caps a single newline-framed or WebSocket message.
	MaxLineBytes = 4096

	dateFieldCount = 6
)

var (
	// ErrMalformed marks a command whose syntax could not be parsed.
	ErrMalformed = errors.New("protocol: malformed command")

	// ErrBadDate marks a delay command whose firing time could not be parsed.
	ErrBadDate = errors.New("protocol: unparsable firing time")
)

// ParseError describes a malformed command. It unwraps to ErrMalformed or
// ErrBadDate.
type ParseError struct {
	Kind   Kind
	Notice string
	cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v (%s)", e.cause, e.Kind)
}

func (e *ParseError) Unwrap() error { return e.cause }

func malformed(kind Kind, notice string) *ParseError {
	return &ParseError{Kind: kind, Notice: notice, cause: ErrMalformed}
}

// Command is one classified inbound line. Which fields are set depends on
// Kind:
//
//	KindPublic    Text
//	KindUsername  Name
//	KindPrivate   Name (recipient), Text
//	KindReport    Name (target)
//	KindDelay     Text, FireAt
//	KindCancel    ID
//
// Err is non-nil when the prefix matched but the rest did not parse.
type Command struct {
	Kind   Kind
	Raw    string
	Name   string
	Text   string
	ID     string
	FireAt time.Time
	Err    *ParseError
}

// Parse classifies a trimmed line. Firing times are interpreted in loc;
// a nil loc means time.Local.
func Parse(line string, loc *time.Location) Command {
	cmd := Command{Raw: line}

	switch {
	case line == LineExit:
		cmd.Kind = KindExit
	case strings.HasPrefix(line, PrefixUsername):
		cmd.Kind = KindUsername
		name, ok := ParseHandshake(line)
		if !ok || name == "" {
			cmd.Err = malformed(KindUsername, UsageUsername)
			break
		}
		cmd.Name = name
	case strings.HasPrefix(line, PrefixStatus):
		cmd.Kind = KindStatus
	case strings.HasPrefix(line, PrefixPrivate):
		cmd.Kind = KindPrivate
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 || parts[1] == "" || strings.TrimSpace(parts[2]) == "" {
			cmd.Err = malformed(KindPrivate, UsagePrivate)
			break
		}
		cmd.Name, cmd.Text = parts[1], parts[2]
	case strings.HasPrefix(line, PrefixReport):
		cmd.Kind = KindReport
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			cmd.Err = malformed(KindReport, UsageReport)
			break
		}
		cmd.Name = strings.TrimSpace(parts[1])
	case strings.HasPrefix(line, PrefixDelay):
		cmd.Kind = KindDelay
		text, fireAt, err := parseDelay(line, loc)
		if err != nil {
			cmd.Err = err
			break
		}
		cmd.Text, cmd.FireAt = text, fireAt
	case strings.HasPrefix(line, PrefixCancel):
		cmd.Kind = KindCancel
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			cmd.Err = malformed(KindCancel, UsageCancel)
			break
		}
		cmd.ID = strings.TrimSpace(parts[1])
	default:
		cmd.Kind = KindPublic
		cmd.Text = line
	}
	return cmd
}

// ParseHandshake extracts the display name from "username - <name>".
// Everything after the first '-' is trimmed and taken verbatim. Without a
// '-', the line minus an optional "username" prefix is used and ok is false.
func ParseHandshake(line string) (name string, ok bool) {
	if _, after, found := strings.Cut(line, "-"); found {
		return strings.TrimSpace(after), true
	}
	return strings.TrimSpace(strings.TrimPrefix(line, PrefixUsername)), false
}

// parseDelay splits "delay <text> <YYYY, MM, DD, HH, MM, SS>". The date is
// always the last six fields; everything between the keyword and the date
// is the message text.
func parseDelay(line string, loc *time.Location) (string, time.Time, *ParseError) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", time.Time{}, malformed(KindDelay, UsageDelay)
	}
	if len(fields) == dateFieldCount+1 {
		// A bare date is a missing text, not a bad date.
		if _, err := ParseFireTime(strings.Join(fields[1:], " "), loc); err == nil {
			return "", time.Time{}, malformed(KindDelay, UsageDelay)
		}
	}
	if len(fields) < dateFieldCount+2 {
		return "", time.Time{}, &ParseError{Kind: KindDelay, Notice: UsageFireTime, cause: ErrBadDate}
	}

	split := len(fields) - dateFieldCount
	fireAt, err := ParseFireTime(strings.Join(fields[split:], " "), loc)
	if err != nil {
		return "", time.Time{}, &ParseError{Kind: KindDelay, Notice: UsageFireTime, cause: err}
	}
	return strings.Join(fields[1:split], " "), fireAt, nil
}

// ParseFireTime parses an absolute firing time in FireTimeLayout.
func ParseFireTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(FireTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
	}
	return t, nil
}

// FormatFireTime renders t the way ParseFireTime expects it.
func FormatFireTime(t time.Time) string {
	return t.Format("2006, 01, 02, 15, 04, 05")
}

// DecodeLine turns one raw read into a message: invalid UTF-8 (including a
// rune cut by the chunk boundary) is replaced and surrounding whitespace is
// trimmed.
func DecodeLine(raw []byte) string {
	s := string(raw)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.TrimSpace(s)
}
