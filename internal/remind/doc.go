// Package remind implements the reminder scheduling engine: the persisted
// timer records, their running/paused state machine, recurrence catch-up
// math, the per-timer wait registry, and shared-reminder subscriptions.
//
// The engine owns exactly one cancellable wait per running timer. Every
// mutation commits the record through the Store and then cancels/re-arms the
// wait, so a caller that sees success is guaranteed the next fire reflects
// the new state. The registry itself is never persisted; it is rebuilt from
// the Store on startup via Replay.
package remind
