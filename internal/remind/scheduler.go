package remind

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Reason records why a reminder reached the end of its life. It is rendered
// as a suffix on the disabled "Remind me" button.
type Reason string

const (
	ReasonTriggered Reason = "(completed)"
	ReasonDeleted   Reason = "(deleted)"
)

// ToggleResult is the outcome of ToggleSubscription.
type ToggleResult struct {
	// IsAuthor is set when the actor owns the reminder; authors are always
	// notified and can never join or leave their own subscriber set.
	IsAuthor bool

	// Subscribed reports whether the actor receives the reminder after the
	// toggle. Count is the subscriber total, Label the new button label.
	Subscribed bool
	Count      int
	Label      string
}

type waitKey struct {
	Owner int64
	ID    string
}

func (k waitKey) String() string { return fmt.Sprintf("%d/%s", k.Owner, k.ID) }

// waitHandle is one live wait for a running timer. The fire callback keeps a
// pointer to its own handle and bails out if the registry no longer maps the
// key to it, so a cancelled wait can never fire even if the underlying timer
// already popped.
type waitHandle struct {
	timer *clock.Timer
}

// Scheduler owns the wait registry and drives the fire -> dispatch ->
// reschedule-or-delete cycle. All mutating operations commit through the
// Store and re-arm before returning.
type Scheduler struct {
	store Store
	disp  Dispatcher
	ui    UI // optional
	clk   clock.Clock
	log   logx.Logger

	// opMu serializes mutations and the bookkeeping half of a fire so the
	// registry and the store never disagree about a timer's next wait.
	// Never held across a dispatch.
	opMu sync.Mutex

	// mu guards the registry only.
	mu    sync.Mutex
	waits map[waitKey]*waitHandle

	runCtx context.Context
}

type Option func(*Scheduler)

// WithClock injects the wait clock. Tests pass a mock so scenarios drive
// time explicitly.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clk = c }
}

// WithUI attaches the optional confirmation-button collaborator.
func WithUI(ui UI) Option {
	return func(s *Scheduler) { s.ui = ui }
}

// SetUI attaches the collaborator after construction, for wiring cycles
// where the UI side also needs the scheduler. Call before Start.
func (s *Scheduler) SetUI(ui UI) { s.ui = ui }

func NewScheduler(store Store, disp Dispatcher, log logx.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		disp:   disp,
		clk:    clock.New(),
		log:    log,
		waits:  map[waitKey]*waitHandle{},
		runCtx: context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Start binds the context used by autonomous fire cycles and replays every
// persisted timer. Running timers whose end time already passed fire
// immediately; recurring ones catch up through NextFire.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runCtx = ctx
	return s.Replay(ctx)
}

// Stop cancels every live wait. Persisted records are untouched; the next
// Start replays them.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	for k, h := range s.waits {
		h.timer.Stop()
		delete(s.waits, k)
	}
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
	return nil
}

// LiveWaits returns the number of registered waits. Operational signal for
// health output and tests.
func (s *Scheduler) LiveWaits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}

// Replay loads every owner with stored timers and arms their records.
func (s *Scheduler) Replay(ctx context.Context) error {
	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("replay: list owners: %w", err)
	}
	var timers int
	for _, owner := range owners {
		recs, err := s.store.List(ctx, owner)
		if err != nil {
			s.log.Error("replay: load timers failed", logx.Int64("owner", owner), logx.Err(err))
			continue
		}
		for _, rec := range recs {
			s.Arm(rec)
			timers++
		}
	}
	s.log.Info("replayed persisted reminders", logx.Int("owners", len(owners)), logx.Int("timers", timers))
	return nil
}

// Resync re-arms any persisted running record that has no registered wait.
// Normal operation never needs it; the periodic sweep calls it to recover
// from a wait the registry lost (e.g. a persist raced a crash). Returns the
// number of waits restored.
func (s *Scheduler) Resync(ctx context.Context) (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("resync: list owners: %w", err)
	}
	var restored int
	for _, owner := range owners {
		recs, err := s.store.List(ctx, owner)
		if err != nil {
			s.log.Error("resync: load timers failed", logx.Int64("owner", owner), logx.Err(err))
			continue
		}
		for _, rec := range recs {
			if !rec.State.IsRunning() {
				continue
			}
			key := waitKey{Owner: rec.Owner, ID: rec.ID}
			s.mu.Lock()
			_, live := s.waits[key]
			s.mu.Unlock()
			if live {
				continue
			}
			s.log.Warn("resync: restoring lost wait", logx.String("timer", key.String()))
			s.Arm(rec)
			restored++
		}
	}
	return restored, nil
}

// Arm cancels any existing wait for the record and, if it is running,
// registers a new one. Paused records end up with no wait. Idempotent.
func (s *Scheduler) Arm(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(rec)
}

func (s *Scheduler) armLocked(rec Record) {
	key := waitKey{Owner: rec.Owner, ID: rec.ID}
	if h := s.waits[key]; h != nil {
		h.timer.Stop()
		delete(s.waits, key)
	}
	if !rec.State.IsRunning() {
		return
	}
	delay := rec.State.EndTime.Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}
	h := &waitHandle{}
	h.timer = s.clk.AfterFunc(delay, func() { s.fire(key, h) })
	s.waits[key] = h
}

// Cancel drops the wait for the given timer id, if any. Cancelling a timer
// with no registered wait is a no-op.
func (s *Scheduler) Cancel(owner int64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := waitKey{Owner: owner, ID: id}
	if h := s.waits[key]; h != nil {
		h.timer.Stop()
		delete(s.waits, key)
	}
}

// fire runs when a wait elapses: deliver, then delete (one-shot) or
// reschedule with catch-up (recurring).
func (s *Scheduler) fire(key waitKey, h *waitHandle) {
	s.mu.Lock()
	if s.waits[key] != h {
		// Superseded or cancelled while the callback was in flight.
		s.mu.Unlock()
		return
	}
	delete(s.waits, key)
	s.mu.Unlock()

	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	rec, ok, err := s.store.Get(ctx, key.Owner, key.ID)
	if err != nil {
		s.log.Error("fire: load failed, timer halted until next mutation or restart",
			logx.String("timer", key.String()), logx.Err(err))
		return
	}
	if !ok || !rec.State.IsRunning() {
		// Deleted or paused since the wait was armed.
		return
	}

	// Dispatch failure is logged and swallowed; the firing still counts.
	if err := s.disp.Notify(ctx, rec.Channel, rec.Owner, rec.Subscribers, rec.Message); err != nil {
		s.log.Warn("reminder dispatch failed",
			logx.String("timer", key.String()), logx.Int64("chat", rec.Channel.ChatID), logx.Err(err))
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	// Re-read under opMu: a mutation may have landed between dispatch and
	// here. If the record moved on (paused, re-armed, deleted), leave it to
	// the mutation's own re-arm. This guards the one-shot removal too: a
	// successful edit or recurrence toggle during dispatch must not have its
	// record swept out from under it.
	rec, ok, err = s.store.Get(ctx, key.Owner, key.ID)
	if err != nil {
		s.log.Error("fire: reload failed, timer halted until next mutation or restart",
			logx.String("timer", key.String()), logx.Err(err))
		return
	}
	if !ok || !rec.State.IsRunning() {
		return
	}
	s.mu.Lock()
	_, rearmed := s.waits[key]
	s.mu.Unlock()
	if rearmed {
		return
	}

	if rec.Recurrence == nil {
		removed, found, err := s.store.Remove(ctx, key.Owner, key.ID)
		if err != nil {
			s.log.Error("fire: remove failed, timer halted until next mutation or restart",
				logx.String("timer", key.String()), logx.Err(err))
			return
		}
		if found {
			s.disableToggle(ctx, removed, ReasonTriggered)
		}
		s.log.Debug("one-shot reminder completed", logx.String("timer", key.String()))
		return
	}

	next, missed := NextFire(rec.State.EndTime, *rec.Recurrence, s.clk.Now())
	rec.State = Running(next)
	if err := s.store.Upsert(ctx, rec.Owner, rec); err != nil {
		// Do not keep looping on state we failed to persist; the next
		// external mutation or restart re-arms from the store.
		s.log.Error("fire: persist failed, recurring timer halted until next mutation or restart",
			logx.String("timer", key.String()), logx.Err(err))
		return
	}
	if missed > 1 {
		s.log.Info("recurring reminder caught up",
			logx.String("timer", key.String()), logx.Int("missed", missed), logx.Time("next", next))
	}
	s.Arm(rec)
}

func (s *Scheduler) disableToggle(ctx context.Context, rec Record, reason Reason) {
	if s.ui == nil || rec.Confirmation.IsZero() {
		return
	}
	label := ToggleLabel(len(rec.Subscribers)) + " " + string(reason)
	if err := s.ui.UpdateToggle(ctx, rec, label, false); err != nil {
		s.log.Debug("confirmation button update failed", logx.String("timer", rec.ID), logx.Err(err))
	}
}

// ---- Mutating operations ----

// Create schedules a new one-shot or recurring reminder and returns the
// committed record. Shareability is the caller's create-time decision (see
// ShareEligible); a shareable reminder gets its button recorded afterwards
// via AttachConfirmation.
func (s *Scheduler) Create(ctx context.Context, owner int64, channel kit.ChatTarget, duration time.Duration, message string, recurrence *time.Duration) (Record, error) {
	if duration < 0 {
		duration = 0
	}
	if recurrence != nil && *recurrence < MinRecurrence {
		return Record{}, ErrInvalidRecurrence
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	id, err := s.newID(ctx, owner)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:      id,
		Owner:   owner,
		Channel: channel,
		State:   Running(s.clk.Now().Add(duration)),
		Message: message,
	}
	if recurrence != nil {
		r := *recurrence
		rec.Recurrence = &r
	}
	if err := s.store.Upsert(ctx, owner, rec); err != nil {
		return Record{}, fmt.Errorf("create: %w", err)
	}
	s.Arm(rec)
	return rec, nil
}

// CreateAt schedules a one-shot reminder ending at an absolute time.
// A time in the past fires immediately.
func (s *Scheduler) CreateAt(ctx context.Context, owner int64, channel kit.ChatTarget, at time.Time, message string) (Record, error) {
	return s.Create(ctx, owner, channel, at.Sub(s.clk.Now()), message, nil)
}

// AttachConfirmation records the confirmation message carrying the
// "Remind me" button. Called once, right after the message is sent.
func (s *Scheduler) AttachConfirmation(ctx context.Context, owner int64, id string, ref kit.MessageRef) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	rec, ok, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	rec.Confirmation = ref
	if err := s.store.Upsert(ctx, owner, rec); err != nil {
		return fmt.Errorf("attach confirmation: %w", err)
	}
	return nil
}

// Delete cancels the wait, removes the record, and disables the button.
// The wait is cancelled before the record leaves the store so the same
// timer id can never race two cancellation paths.
func (s *Scheduler) Delete(ctx context.Context, owner int64, id string) (Record, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.Cancel(owner, id)
	removed, found, err := s.store.Remove(ctx, owner, id)
	if err != nil {
		return Record{}, fmt.Errorf("delete: %w", err)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	s.disableToggle(ctx, removed, ReasonDeleted)
	return removed, nil
}

// Pause freezes a running timer, keeping the remaining time. Pausing an
// already paused timer is a no-op success.
func (s *Scheduler) Pause(ctx context.Context, owner int64, id string) (Record, error) {
	return s.mutate(ctx, owner, id, func(rec *Record) error {
		if !rec.State.IsRunning() {
			return nil
		}
		rec.State = Paused(rec.State.EndTime.Sub(s.clk.Now()))
		return nil
	})
}

// Resume restarts a paused timer for its remaining time. Resuming an
// already running timer is a no-op success.
func (s *Scheduler) Resume(ctx context.Context, owner int64, id string) (Record, error) {
	return s.mutate(ctx, owner, id, func(rec *Record) error {
		if rec.State.IsRunning() {
			return nil
		}
		rec.State = Running(s.clk.Now().Add(rec.State.Remaining))
		return nil
	})
}

// SetDuration rewrites the timer's duration: a running timer now ends at
// now+d, a paused one will run for d once resumed. A non-nil message also
// replaces the reminder text.
func (s *Scheduler) SetDuration(ctx context.Context, owner int64, id string, d time.Duration, message *string) (Record, error) {
	if d < 0 {
		d = 0
	}
	return s.mutate(ctx, owner, id, func(rec *Record) error {
		if rec.State.IsRunning() {
			rec.State = Running(s.clk.Now().Add(d))
		} else {
			rec.State = Paused(d)
		}
		if message != nil {
			rec.Message = *message
		}
		return nil
	})
}

// Increment shifts the timer by delta (which may be negative). Remaining
// time never goes below zero.
func (s *Scheduler) Increment(ctx context.Context, owner int64, id string, delta time.Duration) (Record, error) {
	return s.mutate(ctx, owner, id, func(rec *Record) error {
		if rec.State.IsRunning() {
			end := rec.State.EndTime.Add(delta)
			if now := s.clk.Now(); end.Before(now) {
				end = now
			}
			rec.State = Running(end)
		} else {
			rec.State = Paused(rec.State.Remaining + delta)
		}
		return nil
	})
}

// ToggleRecurrence flips a timer between one-shot and recurring. Enabling
// requires an interval of at least MinRecurrence; disabling ignores it.
// The returned bool reports whether the timer recurs afterwards.
func (s *Scheduler) ToggleRecurrence(ctx context.Context, owner int64, id string, interval *time.Duration) (Record, bool, error) {
	var enabled bool
	rec, err := s.mutate(ctx, owner, id, func(rec *Record) error {
		if rec.Recurrence != nil {
			rec.Recurrence = nil
			enabled = false
			return nil
		}
		if interval == nil {
			return ErrNeedsInterval
		}
		if *interval < MinRecurrence {
			return ErrInvalidRecurrence
		}
		r := *interval
		rec.Recurrence = &r
		enabled = true
		return nil
	})
	return rec, enabled, err
}

// ToggleSubscription adds or removes actor from the reminder's subscriber
// set. The owner is rejected with IsAuthor. Re-arming (not just persisting)
// keeps the dispatch path aligned with the updated set.
func (s *Scheduler) ToggleSubscription(ctx context.Context, owner int64, id string, actor int64) (ToggleResult, error) {
	if actor == owner {
		return ToggleResult{IsAuthor: true}, nil
	}
	var res ToggleResult
	_, err := s.mutate(ctx, owner, id, func(rec *Record) error {
		res.Subscribed = rec.toggleSubscriber(actor)
		res.Count = len(rec.Subscribers)
		res.Label = ToggleLabel(res.Count)
		return nil
	})
	if err != nil {
		return ToggleResult{}, err
	}
	return res, nil
}

// List returns the owner's reminders.
func (s *Scheduler) List(ctx context.Context, owner int64) ([]Record, error) {
	return s.store.List(ctx, owner)
}

// Get returns a single reminder.
func (s *Scheduler) Get(ctx context.Context, owner int64, id string) (Record, error) {
	rec, ok, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// mutate is the shared load -> validate -> commit -> re-arm path. Validation
// errors abort before any state change; persistence failure leaves the
// previous wait in place so the caller-visible state stays consistent.
func (s *Scheduler) mutate(ctx context.Context, owner int64, id string, fn func(rec *Record) error) (Record, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	rec, ok, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	if err := s.store.Upsert(ctx, owner, rec); err != nil {
		return Record{}, fmt.Errorf("persist reminder %s: %w", id, err)
	}
	s.Arm(rec)
	return rec, nil
}

const idLen = 4

// newID derives a short lowercase id from a UUID, re-rolling on the rare
// per-owner collision. Ids are only unique within one owner's timer set.
func (s *Scheduler) newID(ctx context.Context, owner int64) (string, error) {
	for range 16 {
		raw := strings.ReplaceAll(uuid.NewString(), "-", "")
		id := strings.ToLower(raw[:idLen])
		_, exists, err := s.store.Get(ctx, owner, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate reminder id for owner %d", owner)
}
