// Package notify delivers fired reminders into their chat. Best-effort by
// contract: the scheduler logs failures and never asks for redelivery.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// RatePerSec caps outgoing sends across all reminders. Telegram
	// throttles bots around 30 messages/s; stay under it.
	RatePerSec int
}

type Service struct {
	adapter kit.Adapter
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	return &Service{
		adapter: adapter,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Apply updates the send rate at runtime (config hot reload).
func (s *Service) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	s.limiter.SetLimit(rate.Limit(rps))
	s.limiter.SetBurst(rps)
}

// Notify sends the reminder text, mentioning the owner and every subscriber.
func (s *Service) Notify(ctx context.Context, channel kit.ChatTarget, owner int64, subscribers []int64, message string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := s.adapter.SendText(ctx, channel, renderReminder(owner, subscribers, message), &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		s.log.Warn("reminder send failed", logx.Int64("chat", channel.ChatID), logx.Err(err))
		return err
	}
	s.log.Debug("reminder sent", logx.Int64("chat", channel.ChatID), logx.Int("subscribers", len(subscribers)))
	return nil
}

func renderReminder(owner int64, subscribers []int64, message string) string {
	var b strings.Builder
	b.WriteString(mention(owner))
	if message == "" {
		b.WriteString("'s reminder: <i>no message provided</i>")
	} else {
		b.WriteString("'s reminder: <b>")
		b.WriteString(html.EscapeString(message))
		b.WriteString("</b>")
	}
	if len(subscribers) > 0 {
		b.WriteString("\nAlso for: ")
		for i, sub := range subscribers {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(mention(sub))
		}
	}
	return b.String()
}

// mention renders a Telegram text mention. The user id doubles as the
// visible text; Telegram replaces it with the user's name on supported
// clients.
func mention(id int64) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">@%d</a>`, id, id)
}
