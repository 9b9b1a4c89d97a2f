package remind

import (
	"context"

	kit "remindbot/internal/transport"
)

// Store is the durable per-owner map of timer id -> Record.
//
// Remove returns the removed record by value so callers can finish
// bookkeeping (button updates, replies) after the record is unlinked from
// the live map; no stale handle can re-trigger cancellation later.
type Store interface {
	Get(ctx context.Context, owner int64, id string) (Record, bool, error)
	Upsert(ctx context.Context, owner int64, rec Record) error
	Remove(ctx context.Context, owner int64, id string) (Record, bool, error)

	// List returns all records owned by the given user.
	List(ctx context.Context, owner int64) ([]Record, error)

	// ListOwners returns every owner with at least one stored timer.
	// Used for restart replay.
	ListOwners(ctx context.Context) ([]int64, error)
}

// Dispatcher delivers the reminder text into its channel. Best-effort:
// the engine logs failures and never redelivers.
type Dispatcher interface {
	Notify(ctx context.Context, channel kit.ChatTarget, owner int64, subscribers []int64, message string) error
}

// UI updates the "Remind me" toggle on a reminder's confirmation message.
// Implementations must tolerate stale refs (message deleted by a moderator).
type UI interface {
	UpdateToggle(ctx context.Context, rec Record, label string, enabled bool) error
}
