// Package storage persists each owner's reminder map as one serialized row.
// The wire format (a JSON blob per owner) is owned here; the engine only
// sees the remind.Store contract.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/remind"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// Backend selects "sqlite" (default) or "memory".
	Backend     string
	Path        string
	BusyTimeout time.Duration
}

var ErrClosed = errors.New("storage closed")

// Store is remind.Store plus lifecycle.
type Store interface {
	remind.Store
	Close() error
}

func Open(cfg Config, log logx.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sqlite":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
