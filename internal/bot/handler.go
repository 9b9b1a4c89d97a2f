// Package bot routes incoming Telegram updates into scheduler operations.
// Argument parsing is deliberately plain (Go duration strings, HH:MM);
// human-text unit conversion is not this bot's business.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"remindbot/internal/remind"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// callbackScope prefixes all inline callback data owned by this handler.
const callbackScope = "remind"

type Handler struct {
	adapter kit.Adapter
	sched   *remind.Scheduler
	log     logx.Logger
}

func NewHandler(adapter kit.Adapter, sched *remind.Scheduler, log logx.Logger) *Handler {
	return &Handler{adapter: adapter, sched: sched, log: log}
}

// Run consumes updates until ctx is done. Command handling is sequential by
// design: it serializes user mutations without extra locking.
func (h *Handler) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			switch up.Kind {
			case kit.UpdateMessage:
				if up.Message != nil {
					h.handleMessage(ctx, up.Message)
				}
			case kit.UpdateCallback:
				if up.Callback != nil {
					h.handleCallback(ctx, up.Callback)
				}
			}
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	cmd, args := splitCommand(text)

	var err error
	switch cmd {
	case "remind":
		err = h.cmdCreate(ctx, m, args, false)
	case "remind_every":
		err = h.cmdCreate(ctx, m, args, true)
	case "remind_at":
		err = h.cmdCreateAt(ctx, m, args)
	case "remind_view":
		err = h.cmdView(ctx, m)
	case "remind_delete":
		err = h.cmdDelete(ctx, m, args)
	case "remind_pause":
		err = h.cmdPause(ctx, m, args)
	case "remind_resume":
		err = h.cmdResume(ctx, m, args)
	case "remind_edit":
		err = h.cmdEdit(ctx, m, args)
	case "remind_incr":
		err = h.cmdIncrement(ctx, m, args)
	case "remind_recur":
		err = h.cmdRecur(ctx, m, args)
	default:
		return
	}
	if err != nil {
		h.log.Warn("command failed", logx.String("cmd", cmd), logx.Int64("from", m.FromID), logx.Err(err))
		h.reply(ctx, m, "<b>Something went wrong handling that command.</b>")
	}
}

// handleCallback routes "remind:sub:<owner>:<id>" button presses into
// ToggleSubscription and refreshes the button label in place.
func (h *Handler) handleCallback(ctx context.Context, cb *kit.Callback) {
	scope, action, payload := tgui.Split(cb.Data)
	if scope != callbackScope || action != "sub" {
		return
	}
	ownerStr, id, ok := strings.Cut(payload, ":")
	if !ok {
		return
	}
	owner, err := strconv.ParseInt(ownerStr, 10, 64)
	if err != nil {
		return
	}

	res, err := h.sched.ToggleSubscription(ctx, owner, id, cb.FromID)
	if err != nil {
		// The reminder fired or was deleted between render and click.
		_ = h.adapter.AnswerCallback(ctx, cb.ID, "This reminder no longer exists.")
		return
	}
	if res.IsAuthor {
		_ = h.adapter.AnswerCallback(ctx, cb.ID,
			"You are the author of this reminder and will always be pinged when it triggers.")
		return
	}

	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	if err := h.editToggle(ctx, ref, owner, id, res.Label, true); err != nil {
		h.log.Debug("toggle button edit failed", logx.Err(err))
	}

	if res.Subscribed {
		_ = h.adapter.AnswerCallback(ctx, cb.ID, "You will also be pinged when this reminder triggers.")
	} else {
		_ = h.adapter.AnswerCallback(ctx, cb.ID, "You will no longer receive this reminder.")
	}
}

// ---- UI collaborator ----

// UpdateToggle implements remind.UI for the scheduler's completion and
// deletion paths.
func (h *Handler) UpdateToggle(ctx context.Context, rec remind.Record, label string, enabled bool) error {
	return h.editToggle(ctx, rec.Confirmation, rec.Owner, rec.ID, label, enabled)
}

func (h *Handler) editToggle(ctx context.Context, ref kit.MessageRef, owner int64, id, label string, enabled bool) error {
	if ref.IsZero() {
		return nil
	}
	data := tgui.Data(callbackScope, "noop", "")
	if enabled {
		data = subCallbackData(owner, id)
	}
	markup := tgui.NewInline().Row(tgui.Btn("⏰ "+label, data)).Markup()
	return h.adapter.EditMarkup(ctx, ref, &kit.SendOptions{ReplyMarkupAdapter: markup})
}

func subCallbackData(owner int64, id string) string {
	return tgui.Data(callbackScope, "sub", fmt.Sprintf("%d:%s", owner, id))
}

// ---- helpers ----

func splitCommand(text string) (cmd, args string) {
	cmd, args, _ = strings.Cut(strings.TrimPrefix(text, "/"), " ")
	// strip the @botname suffix Telegram appends in groups
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func (h *Handler) reply(ctx context.Context, m *kit.Message, text string) kit.MessageRef {
	ref, err := h.adapter.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, text, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		h.log.Warn("reply failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
	return ref
}
