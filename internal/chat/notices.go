package chat

import (
	"fmt"
	"strconv"
	"strings"
)

// Fixed notices.
const (
	NoticeHistoryEmpty = "Public chat history is empty"
	NoticeBanned       = "You have been banned"
	NoticeExit         = "exit"
)

func welcomeNotice(chatName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to %s. You can use following commands:\n", chatName)
	b.WriteString("status - get information about public chat.\n")
	b.WriteString("pm username text - to send private message.\n")
	b.WriteString("ban username - to send a report to user.\n")
	b.WriteString("delay text YYYY, MM, DD, HH, MM, SS - send a delayed message.\n")
	b.WriteString("cancel id - cancel a delayed message.\n")
	b.WriteString("exit - leave the chat.")
	return b.String()
}

func historyHeader(n int) string {
	return fmt.Sprintf("The last %d messages in the public chat:", n)
}

func rateLimitNotice(limit int) string {
	return fmt.Sprintf("You have reached the maximum number of messages %d for this period. "+
		"Please wait until this period is over to send more messages.", limit)
}

func statusNotice(chatName string, usernames []string) string {
	return fmt.Sprintf("%s: %d users - %s", chatName, len(usernames), strings.Join(usernames, ", "))
}

func privateNotice(from, text string) string {
	return fmt.Sprintf("Private message from %s: %s", from, text)
}

func recipientNotFound(name string) string {
	return fmt.Sprintf("Recipient %s not found", name)
}

func userNotFound(name string) string {
	return fmt.Sprintf("User %s not found", name)
}

func reportNotice(from string) string {
	return fmt.Sprintf("You received a report from a user %s", from)
}

func unbannedNotice(name string) string {
	return fmt.Sprintf("%s has been unbanned", name)
}

func scheduledNotice(text, id string, delaySeconds float64) string {
	return fmt.Sprintf("Scheduled public chat message %q with ID %s in %s seconds.",
		text, id, strconv.FormatFloat(delaySeconds, 'f', 1, 64))
}

func delayedSentNotice(id string) string {
	return fmt.Sprintf("Delayed message with ID %s was sent in chat.", id)
}

func delayedGoneNotice(id string) string {
	return fmt.Sprintf("Delayed message with ID %s has already been cancelled or sent.", id)
}

func cancelledNotice(id string) string {
	return fmt.Sprintf("Delayed message with ID %s has been cancelled.", id)
}

func cancelNotFound(id string) string {
	return fmt.Sprintf("Delayed message with ID %s not found.", id)
}
