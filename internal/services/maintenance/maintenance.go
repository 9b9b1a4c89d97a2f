// Package maintenance runs the periodic consistency sweep that reconciles
// the persisted reminder set with the live wait registry.
package maintenance

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"remindbot/internal/remind"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// SweepSpec is a cron spec (five fields or "@every 15m"). Empty
	// disables the sweep.
	SweepSpec string
}

type Service struct {
	sched *remind.Scheduler
	log   logx.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	spec  string
	entry cron.EntryID

	runCtx context.Context
}

func New(sched *remind.Scheduler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{sched: sched, log: log, runCtx: context.Background()}
}

// Start validates and schedules the sweep. A nil error with an empty spec
// means the sweep is simply off.
func (s *Service) Start(ctx context.Context, cfg Config) error {
	s.runCtx = ctx
	return s.Apply(cfg)
}

// Apply reschedules the sweep on config hot reload. An invalid spec is
// rejected and the previous schedule keeps running.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.SweepSpec == s.spec {
		return nil
	}

	if cfg.SweepSpec == "" {
		s.stopLocked()
		s.spec = ""
		s.log.Info("maintenance sweep disabled")
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.log})))
	id, err := c.AddFunc(cfg.SweepSpec, s.sweep)
	if err != nil {
		return fmt.Errorf("maintenance: bad sweep spec %q: %w", cfg.SweepSpec, err)
	}

	s.stopLocked()
	s.cron, s.entry, s.spec = c, id, cfg.SweepSpec
	c.Start()
	s.log.Info("maintenance sweep scheduled", logx.String("spec", cfg.SweepSpec))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.spec = ""
}

func (s *Service) stopLocked() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

func (s *Service) sweep() {
	ctx := s.runCtx
	if ctx.Err() != nil {
		return
	}
	restored, err := s.sched.Resync(ctx)
	if err != nil {
		s.log.Error("maintenance sweep failed", logx.Err(err))
		return
	}
	if restored > 0 {
		s.log.Warn("maintenance sweep restored waits", logx.Int("restored", restored))
	} else {
		s.log.Debug("maintenance sweep clean")
	}
}

// cronLogger adapts logx onto cron's logging contract; only panics from
// cron.Recover reach Error.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Debug(msg, logx.Any("detail", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Error(msg, logx.Err(err), logx.Any("detail", kv))
}
