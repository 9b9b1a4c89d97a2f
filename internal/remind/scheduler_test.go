package remind_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/remind"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type dispatchCall struct {
	Channel     kit.ChatTarget
	Owner       int64
	Subscribers []int64
	Message     string
}

type captureDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (d *captureDispatcher) Notify(_ context.Context, channel kit.ChatTarget, owner int64, subscribers []int64, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{
		Channel: channel, Owner: owner,
		Subscribers: append([]int64(nil), subscribers...),
		Message:     message,
	})
	return nil
}

func (d *captureDispatcher) Calls() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

type captureUI struct {
	mu      sync.Mutex
	labels  []string
	enabled []bool
}

func (u *captureUI) UpdateToggle(_ context.Context, _ remind.Record, label string, enabled bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.labels = append(u.labels, label)
	u.enabled = append(u.enabled, enabled)
	return nil
}

func newTestScheduler(t *testing.T, opts ...remind.Option) (*remind.Scheduler, *storage.Memory, *captureDispatcher, *clock.Mock) {
	t.Helper()
	store := storage.NewMemory()
	disp := &captureDispatcher{}
	clk := clock.NewMock()
	opts = append([]remind.Option{remind.WithClock(clk)}, opts...)
	sched := remind.NewScheduler(store, disp, logx.Nop(), opts...)
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })
	return sched, store, disp, clk
}

var channel = kit.ChatTarget{ChatID: -100123}

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	sched, _, disp, clk := newTestScheduler(t)
	ctx := context.Background()

	rec, err := sched.Create(ctx, 42, channel, 10*time.Minute, "stop watching tv", nil)
	require.NoError(t, err)
	require.Len(t, rec.ID, 4)
	assert.Equal(t, 1, sched.LiveWaits())

	clk.Add(9 * time.Minute)
	assert.Empty(t, disp.Calls(), "fired before its end time")

	clk.Add(time.Minute)
	calls := disp.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(42), calls[0].Owner)
	assert.Equal(t, channel, calls[0].Channel)
	assert.Equal(t, "stop watching tv", calls[0].Message)

	_, err = sched.Get(ctx, 42, rec.ID)
	assert.ErrorIs(t, err, remind.ErrNotFound, "one-shot record should be removed after firing")
	assert.Equal(t, 0, sched.LiveWaits())

	clk.Add(time.Hour)
	assert.Len(t, disp.Calls(), 1, "one-shot fired more than once")
}

func TestRecurringReschedulesAfterFire(t *testing.T) {
	sched, _, disp, clk := newTestScheduler(t)
	ctx := context.Background()

	interval := time.Minute
	rec, err := sched.Create(ctx, 42, channel, interval, "stretch", &interval)
	require.NoError(t, err)
	firstEnd := rec.State.EndTime

	clk.Add(interval)
	require.Len(t, disp.Calls(), 1)

	got, err := sched.Get(ctx, 42, rec.ID)
	require.NoError(t, err, "recurring record must survive a fire")
	assert.True(t, got.State.IsRunning())
	assert.Equal(t, firstEnd.Add(interval), got.State.EndTime)
	assert.Equal(t, 1, sched.LiveWaits())

	clk.Add(interval)
	assert.Len(t, disp.Calls(), 2)
}

func TestCreateAtPastFiresImmediately(t *testing.T) {
	sched, _, disp, clk := newTestScheduler(t)

	_, err := sched.CreateAt(context.Background(), 42, channel, clk.Now().Add(-time.Minute), "late")
	require.NoError(t, err)

	clk.Add(time.Millisecond)
	assert.Len(t, disp.Calls(), 1)
}

func TestRecurrenceFloorRejected(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t)
	interval := 30 * time.Second
	_, err := sched.Create(context.Background(), 42, channel, time.Minute, "", &interval)
	assert.ErrorIs(t, err, remind.ErrInvalidRecurrence)
	assert.Equal(t, 0, sched.LiveWaits(), "rejected create must not leave a wait behind")
}

func TestReplayCatchesUpMissedCycles(t *testing.T) {
	store := storage.NewMemory()
	disp := &captureDispatcher{}
	clk := clock.NewMock()
	ctx := context.Background()

	// A recurring timer that went 150s past its end while the process was
	// down, and a paused one that must stay silent.
	interval := time.Minute
	end := clk.Now().Add(-150 * time.Second)
	require.NoError(t, store.Upsert(ctx, 42, remind.Record{
		ID: "aaaa", Owner: 42, Channel: channel,
		State:      remind.Running(end),
		Recurrence: &interval,
	}))
	require.NoError(t, store.Upsert(ctx, 42, remind.Record{
		ID: "bbbb", Owner: 42, Channel: channel,
		State: remind.Paused(5 * time.Minute),
	}))

	sched := remind.NewScheduler(store, disp, logx.Nop(), remind.WithClock(clk))
	require.NoError(t, sched.Start(ctx))
	t.Cleanup(func() { _ = sched.Stop(ctx) })

	assert.Equal(t, 1, sched.LiveWaits(), "only the running record should hold a wait")

	clk.Add(time.Millisecond)
	require.Len(t, disp.Calls(), 1, "overdue timer should fire exactly once on replay")

	got, err := sched.Get(ctx, 42, "aaaa")
	require.NoError(t, err)
	// 150s late at 60s intervals skips straight past the three missed
	// cycles: end + 3*interval.
	assert.Equal(t, end.Add(3*interval), got.State.EndTime)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	sched, _, disp, clk := newTestScheduler(t)
	ctx := context.Background()

	rec, err := sched.Create(ctx, 42, channel, 10*time.Minute, "", nil)
	require.NoError(t, err)

	clk.Add(4 * time.Minute)
	paused, err := sched.Pause(ctx, 42, rec.ID)
	require.NoError(t, err)
	assert.False(t, paused.State.IsRunning())
	assert.Equal(t, 6*time.Minute, paused.State.Remaining)
	assert.Equal(t, 0, sched.LiveWaits(), "paused timer must hold no wait")

	clk.Add(time.Hour)
	assert.Empty(t, disp.Calls(), "paused timer fired")

	// No-op pause keeps the remaining time.
	again, err := sched.Pause(ctx, 42, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute, again.State.Remaining)

	resumed, err := sched.Resume(ctx, 42, rec.ID)
	require.NoError(t, err)
	assert.True(t, resumed.State.IsRunning())
	assert.Equal(t, clk.Now().Add(6*time.Minute), resumed.State.EndTime)
	assert.Equal(t, 1, sched.LiveWaits())

	clk.Add(6 * time.Minute)
	assert.Len(t, disp.Calls(), 1)
}

func TestSetDurationSupersedesOldWait(t *testing.T) {
	sched, _, disp, clk := newTestScheduler(t)
	ctx := context.Background()

	rec, err := sched.Create(ctx, 42, channel, time.Minute, "", nil)
	require.NoError(t, err)

	_, err = sched.SetDuration(ctx, 42, rec.ID, 10*time.Minute, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sched.LiveWaits(), "edit must replace, not stack, the wait")

	clk.Add(5 * time.Minute)
	assert.Empty(t, disp.Calls(), "superseded wait fired")

	clk.Add(5 * time.Minute)
	assert.Len(t, disp.Calls(), 1)
}

// hookDispatcher runs a callback during delivery, before the scheduler's
// post-dispatch bookkeeping. It models a user mutation landing while the
// reminder text is in flight.
type hookDispatcher struct {
	captureDispatcher
	once   sync.Once
	during func()
}

func (d *hookDispatcher) Notify(ctx context.Context, channel kit.ChatTarget, owner int64, subscribers []int64, message string) error {
	if d.during != nil {
		d.once.Do(d.during)
	}
	return d.captureDispatcher.Notify(ctx, channel, owner, subscribers, message)
}

func TestEditDuringDispatchKeepsOneShotRecord(t *testing.T) {
	store := storage.NewMemory()
	disp := &hookDispatcher{}
	clk := clock.NewMock()
	ctx := context.Background()

	sched := remind.NewScheduler(store, disp, logx.Nop(), remind.WithClock(clk))
	require.NoError(t, sched.Start(ctx))
	t.Cleanup(func() { _ = sched.Stop(ctx) })

	rec, err := sched.Create(ctx, 42, channel, time.Minute, "in flight", nil)
	require.NoError(t, err)

	// The edit commits and re-arms while the fire is mid-delivery; the
	// completed fire must defer to it instead of removing the record.
	disp.during = func() {
		_, err := sched.SetDuration(ctx, 42, rec.ID, 10*time.Minute, nil)
		require.NoError(t, err)
	}

	clk.Add(time.Minute)
	require.Len(t, disp.Calls(), 1)

	got, err := sched.Get(ctx, 42, rec.ID)
	require.NoError(t, err, "record edited during dispatch must survive the fire")
	assert.True(t, got.State.IsRunning())
	assert.Equal(t, clk.Now().Add(10*time.Minute), got.State.EndTime)
	assert.Equal(t, 1, sched.LiveWaits())

	// The edited schedule then runs its own course.
	clk.Add(10 * time.Minute)
	assert.Len(t, disp.Calls(), 2)
	_, err = sched.Get(ctx, 42, rec.ID)
	assert.ErrorIs(t, err, remind.ErrNotFound)
}

func TestSetDurationOnPausedArmsNoWait(t *testing.T) {
	sched, _, disp, clk := newTestScheduler(t)
	ctx := context.Background()

	rec, err := sched.Create(ctx, 42, channel, 10*time.Minute, "", nil)
	require.NoError(t, err)
	_, err = sched.Pause(ctx, 42, rec.ID)
	require.NoError(t, err)

	got, err := sched.SetDuration(ctx, 42, rec.ID, 3*time.Minute, nil)
	require.NoError(t, err)
	assert.False(t, got.State.IsRunning())
	assert.Equal(t, 3*time.Minute, got.State.Remaining)
	assert.Equal(t, 0, sched.LiveWaits(), "editing a paused timer must not arm a wait")

	clk.Add(time.Hour)
	assert.Empty(t, disp.Calls(), "paused timer fired after edit")

	// Only Resume arms the wait, for the edited remaining time.
	_, err = sched.Resume(ctx, 42, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sched.LiveWaits())

	clk.Add(3 * time.Minute)
	assert.Len(t, disp.Calls(), 1)
}

func TestIncrementClampsRunningEndToNow(t *testing.T) {
	sched, _, _, clk := newTestScheduler(t)
	ctx := context.Background()

	rec, err := sched.Create(ctx, 42, channel, 10*time.Minute, "", nil)
	require.NoError(t, err)

	got, err := sched.Increment(ctx, 42, rec.ID, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), got.State.EndTime, "running end must clamp to now, not the past")

	// Paused remaining clamps at zero.
	rec2, err := sched.Create(ctx, 42, channel, 10*time.Minute, "", nil)
	require.NoError(t, err)
	_, err = sched.Pause(ctx, 42, rec2.ID)
	require.NoError(t, err)
	got2, err := sched.Increment(ctx, 42, rec2.ID, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got2.State.Remaining)
}

func TestDeleteCancelsWaitAndIsNotIdempotent(t *testing.T) {
	sched, _, disp, clk := newTestScheduler(t)
	ctx := context.Background()

	rec, err := sched.Create(ctx, 42, channel, time.Minute, "", nil)
	require.NoError(t, err)

	_, err = sched.Delete(ctx, 42, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sched.LiveWaits())

	_, err = sched.Delete(ctx, 42, rec.ID)
	assert.ErrorIs(t, err, remind.ErrNotFound)

	clk.Add(time.Hour)
	assert.Empty(t, disp.Calls(), "deleted timer fired")
}

func TestToggleRecurrenceFlips(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t)
	ctx := context.Background()

	rec, err := sched.Create(ctx, 42, channel, 10*time.Minute, "", nil)
	require.NoError(t, err)

	_, _, err = sched.ToggleRecurrence(ctx, 42, rec.ID, nil)
	assert.ErrorIs(t, err, remind.ErrNeedsInterval)

	bad := 10 * time.Second
	_, _, err = sched.ToggleRecurrence(ctx, 42, rec.ID, &bad)
	assert.ErrorIs(t, err, remind.ErrInvalidRecurrence)

	interval := 5 * time.Minute
	got, enabled, err := sched.ToggleRecurrence(ctx, 42, rec.ID, &interval)
	require.NoError(t, err)
	assert.True(t, enabled)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, interval, *got.Recurrence)

	got, enabled, err = sched.ToggleRecurrence(ctx, 42, rec.ID, nil)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Nil(t, got.Recurrence)
}

func TestToggleSubscriptionExcludesAuthor(t *testing.T) {
	sched, _, disp, clk := newTestScheduler(t)
	ctx := context.Background()

	interval := 5 * time.Minute
	rec, err := sched.Create(ctx, 42, channel, interval, "standup", &interval)
	require.NoError(t, err)

	res, err := sched.ToggleSubscription(ctx, 42, rec.ID, 42)
	require.NoError(t, err)
	assert.True(t, res.IsAuthor)

	got, err := sched.Get(ctx, 42, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Subscribers, "author toggle must not change the set")

	res, err = sched.ToggleSubscription(ctx, 42, rec.ID, 7)
	require.NoError(t, err)
	assert.True(t, res.Subscribed)
	assert.Equal(t, "Remind me (1 user)", res.Label)

	res, err = sched.ToggleSubscription(ctx, 42, rec.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "Remind me (2 users)", res.Label)

	clk.Add(interval)
	calls := disp.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []int64{7, 9}, calls[0].Subscribers)
	assert.NotContains(t, calls[0].Subscribers, int64(42))

	res, err = sched.ToggleSubscription(ctx, 42, rec.ID, 7)
	require.NoError(t, err)
	assert.False(t, res.Subscribed)
	assert.Equal(t, "Remind me (1 user)", res.Label)
}

func TestPersistFailureHaltsRecurringTimer(t *testing.T) {
	sched, store, disp, clk := newTestScheduler(t)
	ctx := context.Background()

	interval := time.Minute
	rec, err := sched.Create(ctx, 42, channel, interval, "", &interval)
	require.NoError(t, err)

	store.FailUpserts = true
	clk.Add(interval)
	require.Len(t, disp.Calls(), 1, "dispatch still happens; persistence fails after")
	assert.Equal(t, 0, sched.LiveWaits(), "timer must halt instead of looping on unpersisted state")

	clk.Add(time.Hour)
	assert.Len(t, disp.Calls(), 1)

	// Once the store recovers, the sweep restores the lost wait.
	store.FailUpserts = false
	restored, err := sched.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	clk.Add(time.Millisecond)
	assert.Len(t, disp.Calls(), 2)
	got, err := sched.Get(ctx, 42, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.State.EndTime.After(clk.Now()))
}

func TestCompletionDisablesToggleButton(t *testing.T) {
	ui := &captureUI{}
	sched, _, _, clk := newTestScheduler(t, remind.WithUI(ui))
	ctx := context.Background()

	rec, err := sched.Create(ctx, 42, channel, 5*time.Minute, "", nil)
	require.NoError(t, err)
	ref := kit.MessageRef{ChatID: channel.ChatID, MessageID: 777}
	require.NoError(t, sched.AttachConfirmation(ctx, 42, rec.ID, ref))

	clk.Add(5 * time.Minute)
	require.Len(t, ui.labels, 1)
	assert.Equal(t, "Remind me (completed)", ui.labels[0])
	assert.False(t, ui.enabled[0])

	// Deleted reminders get the other suffix.
	rec2, err := sched.Create(ctx, 42, channel, 5*time.Minute, "", nil)
	require.NoError(t, err)
	require.NoError(t, sched.AttachConfirmation(ctx, 42, rec2.ID, ref))
	_, err = sched.Delete(ctx, 42, rec2.ID)
	require.NoError(t, err)
	require.Len(t, ui.labels, 2)
	assert.Equal(t, "Remind me (deleted)", ui.labels[1])
}
