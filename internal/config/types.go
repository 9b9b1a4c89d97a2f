package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
	Health   HealthConfig   `json:"health,omitempty"`

	// Maintenance controls the periodic consistency sweep that re-arms any
	// running reminder the wait registry lost track of.
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	// Backend is "sqlite" (default) or "memory".
	Backend string `json:"backend,omitempty"`
	Path    string `json:"path,omitempty"`

	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`

	// Pprof exposes net/http/pprof under /debug/pprof on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

type MaintenanceConfig struct {
	// SweepSpec is a cron spec (five fields or @every syntax). Empty
	// disables the sweep.
	SweepSpec string `json:"sweep_spec,omitempty"`
}
