package remind

import (
	"fmt"
	"sort"
	"time"

	kit "remindbot/internal/transport"
)

const (
	// MinRecurrence is the floor for recurring intervals.
	MinRecurrence = time.Minute

	// MinShareableDuration is the minimum one-shot duration for a reminder
	// to carry a "Remind me" button. Recurring reminders are always
	// shareable in a group context.
	MinShareableDuration = 2 * time.Minute
)

type StateKind string

const (
	StateRunning StateKind = "running"
	StatePaused  StateKind = "paused"
)

// State is the running/paused union. Exactly one variant holds at a time:
// EndTime for running timers, Remaining for paused ones. Use Running or
// Paused to construct values.
type State struct {
	Kind      StateKind     `json:"kind"`
	EndTime   time.Time     `json:"end_time,omitzero"`
	Remaining time.Duration `json:"remaining,omitempty"`
}

func Running(endTime time.Time) State {
	return State{Kind: StateRunning, EndTime: endTime}
}

func Paused(remaining time.Duration) State {
	if remaining < 0 {
		remaining = 0
	}
	return State{Kind: StatePaused, Remaining: remaining}
}

func (s State) IsRunning() bool { return s.Kind == StateRunning }

// Record is the persisted reminder entity. Owner and Channel are fixed at
// creation; everything else is mutated only through the Scheduler.
type Record struct {
	ID      string         `json:"id"`
	Owner   int64          `json:"owner"`
	Channel kit.ChatTarget `json:"channel"`
	State   State          `json:"state"`

	// Recurrence, when non-nil, re-arms the timer after each fire.
	// Always >= MinRecurrence.
	Recurrence *time.Duration `json:"recurrence,omitempty"`

	Message string `json:"message,omitempty"`

	// Subscribers holds users who opted in via the "Remind me" button,
	// sorted ascending. The owner is always notified and never appears here.
	Subscribers []int64 `json:"subscribers,omitempty"`

	// Confirmation points at the confirmation message carrying the
	// "Remind me" button. Zero when the reminder is not shareable;
	// shareability is decided once, at creation.
	Confirmation kit.MessageRef `json:"confirmation,omitzero"`
}

func (r Record) HasSubscriber(user int64) bool {
	i := sort.Search(len(r.Subscribers), func(i int) bool { return r.Subscribers[i] >= user })
	return i < len(r.Subscribers) && r.Subscribers[i] == user
}

// toggleSubscriber adds user if absent, removes it if present, and reports
// whether the user is subscribed afterwards.
func (r *Record) toggleSubscriber(user int64) bool {
	i := sort.Search(len(r.Subscribers), func(i int) bool { return r.Subscribers[i] >= user })
	if i < len(r.Subscribers) && r.Subscribers[i] == user {
		r.Subscribers = append(r.Subscribers[:i], r.Subscribers[i+1:]...)
		return false
	}
	r.Subscribers = append(r.Subscribers, 0)
	copy(r.Subscribers[i+1:], r.Subscribers[i:])
	r.Subscribers[i] = user
	return true
}

// ShareEligible reports whether a reminder created in the given context may
// carry a "Remind me" button. This is a create-time decision; it is not
// re-evaluated when the reminder is later edited.
func ShareEligible(groupContext bool, duration time.Duration, recurring bool) bool {
	if !groupContext {
		return false
	}
	return recurring || duration >= MinShareableDuration
}

// ToggleLabel is the "Remind me" button label for the given subscriber count.
func ToggleLabel(subscribers int) string {
	switch {
	case subscribers <= 0:
		return "Remind me"
	case subscribers == 1:
		return "Remind me (1 user)"
	default:
		return fmt.Sprintf("Remind me (%d users)", subscribers)
	}
}
