// Package health exposes a small operational HTTP listener: a liveness
// endpoint with scheduler stats, and optionally net/http/pprof.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	logx "remindbot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
	Pprof   bool
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8090"
	}
	return c
}

// Stats is polled on every /healthz request.
type Stats struct {
	LiveWaits int    `json:"live_waits"`
	Uptime    string `json:"uptime"`
}

type Service struct {
	mu    sync.Mutex
	log   logx.Logger
	stats func() Stats

	srv   *http.Server
	ln    net.Listener
	addr  string
	pprof bool

	started time.Time
}

func New(log logx.Logger, stats func() Stats) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, stats: stats, started: time.Now()}
}

// Apply starts, stops, or rebinds the listener to match cfg. Safe to call
// on config hot reload.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return
	}
	if s.srv != nil && s.addr == cfg.Addr && s.pprof == cfg.Pprof {
		return
	}
	s.stopLocked(ctx)
	s.startLocked(cfg)
}

func (s *Service) startLocked(cfg Config) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st := Stats{Uptime: time.Since(s.started).Round(time.Second).String()}
		if s.stats != nil {
			st = s.stats()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "ok",
			"live_waits": st.LiveWaits,
			"uptime":     st.Uptime,
		})
	})
	if cfg.Pprof {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.log.Warn("health listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		return
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()
	s.pprof = cfg.Pprof

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("health server error", logx.String("addr", cfg.Addr), logx.Err(err))
		}
	}()
	s.log.Info("health listener up", logx.String("addr", s.addr), logx.Bool("pprof", cfg.Pprof))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln, addr := s.srv, s.ln, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""

	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("health shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("health listener down", logx.String("addr", addr))
}

// Addr reports the actual listen address if running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
