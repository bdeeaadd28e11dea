package chat

import "errors"

var (
	// ErrNotFound is returned by handlers when a recipient, report target
	// or delayed message ID does not exist.
	ErrNotFound = errors.New("chat: not found")

	// ErrBanned is returned when a banned sender's line is dropped.
	ErrBanned = errors.New("chat: sender is banned")

	// ErrHubStopped is returned by Serve when the hub loop has exited.
	ErrHubStopped = errors.New("chat: hub stopped")
)
