package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"remindbot/internal/remind"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

func (h *Handler) cmdCreate(ctx context.Context, m *kit.Message, args string, recurring bool) error {
	durRaw, message, _ := strings.Cut(args, " ")
	if durRaw == "" {
		h.reply(ctx, m, "<b>Usage:</b> <code>/remind &lt;duration&gt; [message]</code>, e.g. <code>/remind 10m stop watching tv</code>")
		return nil
	}
	dur, err := time.ParseDuration(durRaw)
	if err != nil || dur <= 0 {
		h.replyBadDuration(ctx, m, durRaw)
		return nil
	}
	message = strings.TrimSpace(message)

	var recurrence *time.Duration
	if recurring {
		if dur < remind.MinRecurrence {
			h.reply(ctx, m, "<b>The recurring reminder interval must be at least 1 minute.</b>")
			return nil
		}
		recurrence = &dur
	}

	rec, err := h.sched.Create(ctx, m.FromID, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, dur, message, recurrence)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("<b>You will be mentioned in this channel in <code>%s</code>.</b> This reminder's ID is <code>%s</code>.",
		formatDur(dur), rec.ID)
	if recurring {
		text = fmt.Sprintf("<b>You will be mentioned in this channel every <code>%s</code>.</b> This reminder's ID is <code>%s</code>.",
			formatDur(dur), rec.ID)
	}

	// Shareability is decided here, once. Short one-shot reminders and DM
	// reminders get no button.
	if !remind.ShareEligible(m.IsGroup, dur, recurring) {
		h.reply(ctx, m, text)
		return nil
	}

	markup := tgui.NewInline().Row(tgui.Btn("⏰ "+remind.ToggleLabel(0), subCallbackData(rec.Owner, rec.ID))).Markup()
	ref, err := h.adapter.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, text, &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: markup,
	})
	if err != nil {
		h.log.Warn("confirmation send failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		return nil
	}
	if err := h.sched.AttachConfirmation(ctx, rec.Owner, rec.ID, ref); err != nil {
		h.log.Warn("confirmation attach failed", logx.String("timer", rec.ID), logx.Err(err))
	}
	return nil
}

func (h *Handler) cmdCreateAt(ctx context.Context, m *kit.Message, args string) error {
	atRaw, message, _ := strings.Cut(args, " ")
	if atRaw == "" {
		h.reply(ctx, m, "<b>Usage:</b> <code>/remind_at &lt;HH:MM&gt; [message]</code>, e.g. <code>/remind_at 22:00 stop watching tv</code>")
		return nil
	}
	now := time.Now()
	target, err := untilClock(atRaw, now)
	if err != nil {
		h.reply(ctx, m, fmt.Sprintf("<b><code>%s</code> is not a valid time, expected HH:MM.</b>", html.EscapeString(atRaw)))
		return nil
	}
	dur := target.Sub(now)

	rec, err := h.sched.CreateAt(ctx, m.FromID, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, target, strings.TrimSpace(message))
	if err != nil {
		return err
	}
	h.reply(ctx, m, fmt.Sprintf("<b>You will be mentioned in this channel at <code>%s</code> (in <code>%s</code>).</b> This reminder's ID is <code>%s</code>.",
		html.EscapeString(atRaw), formatDur(dur), rec.ID))
	return nil
}

func (h *Handler) cmdView(ctx context.Context, m *kit.Message) error {
	recs, err := h.sched.List(ctx, m.FromID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		h.reply(ctx, m, "You have no active reminders. Use the <code>/remind</code> command to set one.")
		return nil
	}

	var b strings.Builder
	b.WriteString("<b>Reminders</b>\n")
	now := time.Now()
	for _, rec := range recs {
		fmt.Fprintf(&b, "\n<code>%s</code> — %s", rec.ID, describe(rec, now))
	}
	fmt.Fprintf(&b, "\n\n%d %s", len(recs), pluralize(len(recs), "reminder"))
	h.reply(ctx, m, b.String())
	return nil
}

func (h *Handler) cmdDelete(ctx context.Context, m *kit.Message, args string) error {
	id := strings.TrimSpace(args)
	_, err := h.sched.Delete(ctx, m.FromID, id)
	if errors.Is(err, remind.ErrNotFound) {
		h.replyNotFound(ctx, m, id)
		return nil
	}
	if err != nil {
		return err
	}
	h.reply(ctx, m, fmt.Sprintf("<b>Successfully deleted the reminder with ID <code>%s</code>.</b>", html.EscapeString(id)))
	return nil
}

func (h *Handler) cmdPause(ctx context.Context, m *kit.Message, args string) error {
	id := strings.TrimSpace(args)
	_, err := h.sched.Pause(ctx, m.FromID, id)
	if errors.Is(err, remind.ErrNotFound) {
		h.replyNotFound(ctx, m, id)
		return nil
	}
	if err != nil {
		return err
	}
	h.reply(ctx, m, fmt.Sprintf("<b>Successfully paused the reminder with ID <code>%s</code>.</b>", html.EscapeString(id)))
	return nil
}

func (h *Handler) cmdResume(ctx context.Context, m *kit.Message, args string) error {
	id := strings.TrimSpace(args)
	_, err := h.sched.Resume(ctx, m.FromID, id)
	if errors.Is(err, remind.ErrNotFound) {
		h.replyNotFound(ctx, m, id)
		return nil
	}
	if err != nil {
		return err
	}
	h.reply(ctx, m, fmt.Sprintf("<b>Successfully resumed the reminder with ID <code>%s</code>.</b>", html.EscapeString(id)))
	return nil
}

func (h *Handler) cmdEdit(ctx context.Context, m *kit.Message, args string) error {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 2 {
		h.reply(ctx, m, "<b>Usage:</b> <code>/remind_edit &lt;id&gt; &lt;duration&gt; [new message]</code>")
		return nil
	}
	id := fields[0]
	dur, err := time.ParseDuration(fields[1])
	if err != nil || dur <= 0 {
		h.replyBadDuration(ctx, m, fields[1])
		return nil
	}
	var message *string
	if len(fields) == 3 {
		msg := strings.TrimSpace(fields[2])
		message = &msg
	}

	rec, err := h.sched.SetDuration(ctx, m.FromID, id, dur, message)
	if errors.Is(err, remind.ErrNotFound) {
		h.replyNotFound(ctx, m, id)
		return nil
	}
	if err != nil {
		return err
	}
	if rec.State.IsRunning() {
		h.reply(ctx, m, fmt.Sprintf("<b>Successfully edited the reminder with ID <code>%s</code>.</b> It will trigger in <code>%s</code>.",
			html.EscapeString(id), formatDur(dur)))
	} else {
		h.reply(ctx, m, fmt.Sprintf("<b>Successfully edited the reminder with ID <code>%s</code>.</b> Once resumed, it will trigger in <code>%s</code>.",
			html.EscapeString(id), formatDur(dur)))
	}
	return nil
}

func (h *Handler) cmdIncrement(ctx context.Context, m *kit.Message, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		h.reply(ctx, m, "<b>Usage:</b> <code>/remind_incr &lt;id&gt; &lt;±duration&gt;</code>, e.g. <code>/remind_incr 4bxb -10m</code>")
		return nil
	}
	id := fields[0]
	delta, err := time.ParseDuration(fields[1])
	if err != nil || delta == 0 {
		h.replyBadDuration(ctx, m, fields[1])
		return nil
	}

	_, err = h.sched.Increment(ctx, m.FromID, id, delta)
	if errors.Is(err, remind.ErrNotFound) {
		h.replyNotFound(ctx, m, id)
		return nil
	}
	if err != nil {
		return err
	}
	verb := "added"
	amount := delta
	if delta < 0 {
		verb = "removed"
		amount = -delta
	}
	h.reply(ctx, m, fmt.Sprintf("<b>Successfully %s <code>%s</code> on the reminder with ID <code>%s</code>.</b>",
		verb, formatDur(amount), html.EscapeString(id)))
	return nil
}

func (h *Handler) cmdRecur(ctx context.Context, m *kit.Message, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		h.reply(ctx, m, "<b>Usage:</b> <code>/remind_recur &lt;id&gt; [interval]</code>")
		return nil
	}
	id := fields[0]
	var interval *time.Duration
	if len(fields) > 1 {
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			h.replyBadDuration(ctx, m, fields[1])
			return nil
		}
		interval = &d
	}

	_, enabled, err := h.sched.ToggleRecurrence(ctx, m.FromID, id, interval)
	switch {
	case errors.Is(err, remind.ErrNotFound):
		h.replyNotFound(ctx, m, id)
		return nil
	case errors.Is(err, remind.ErrNeedsInterval):
		h.reply(ctx, m, "<b>You must specify a time interval for the reminder to recur with.</b>")
		return nil
	case errors.Is(err, remind.ErrInvalidRecurrence):
		h.reply(ctx, m, "<b>The recurring reminder interval must be at least 1 minute.</b>")
		return nil
	case err != nil:
		return err
	}

	if enabled {
		h.reply(ctx, m, fmt.Sprintf("<b>Successfully set the recurring status of the reminder with ID <code>%s</code>.</b> Once it triggers, it will repeatedly recur every <code>%s</code>.",
			html.EscapeString(id), formatDur(*interval)))
	} else {
		h.reply(ctx, m, fmt.Sprintf("<b>Successfully disabled the recurring status of the reminder with ID <code>%s</code>.</b> It will not recur when it triggers.",
			html.EscapeString(id)))
	}
	return nil
}

func (h *Handler) replyNotFound(ctx context.Context, m *kit.Message, id string) {
	h.reply(ctx, m, fmt.Sprintf("<b>You do not have a reminder set with the ID <code>%s</code>.</b>", html.EscapeString(id)))
}

func (h *Handler) replyBadDuration(ctx context.Context, m *kit.Message, raw string) {
	h.reply(ctx, m, fmt.Sprintf("<b><code>%s</code> is not a valid duration.</b> Use Go duration syntax, e.g. <code>90s</code>, <code>10m</code>, <code>1h30m</code>.", html.EscapeString(raw)))
}

// describe renders one reminder line for /remind_view.
func describe(rec remind.Record, now time.Time) string {
	var b strings.Builder
	if rec.State.IsRunning() {
		left := rec.State.EndTime.Sub(now)
		if left < 0 {
			left = 0
		}
		fmt.Fprintf(&b, "triggers in <code>%s</code>", formatDur(left))
	} else {
		fmt.Fprintf(&b, "paused, <code>%s</code> remaining", formatDur(rec.State.Remaining))
	}
	if rec.Recurrence != nil {
		fmt.Fprintf(&b, ", recurs every <code>%s</code>", formatDur(*rec.Recurrence))
	}
	if rec.Message != "" {
		fmt.Fprintf(&b, ": %s", html.EscapeString(rec.Message))
	}
	if n := len(rec.Subscribers); n > 0 {
		fmt.Fprintf(&b, " (+%d %s)", n, pluralize(n, "subscriber"))
	}
	return b.String()
}

// untilClock resolves HH:MM to the next occurrence of that wall-clock time
// in now's location, rolling over to tomorrow when it already passed today.
func untilClock(raw string, now time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target, nil
}

// formatDur renders a duration as h/m/s, skipping zero components
// ("1h0m0s" -> "1h", "2m30s" stays "2m30s").
func formatDur(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second

	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if s > 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}

func pluralize(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
