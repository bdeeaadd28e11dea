// Package moderation keeps the per-user report ledger that drives temporary
// bans in the public chat.
package moderation
