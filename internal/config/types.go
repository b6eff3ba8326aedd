// Package config resolves, parses, validates, and defaults yakutan configuration.
package config

import "time"

// Config is the fully materialized runtime configuration of the control panel.
type Config struct {
	Service ServiceConfig
	Store   StoreConfig
	Sync    SyncConfig
	Poll    PollConfig
	UI      UIConfig
	EnvFile string
	Log     LogConfig
	Debug   DebugConfig
}

// ServiceConfig locates the translation service and the embedded server listeners.
type ServiceConfig struct {
	URL        string
	Listen     string
	GRPCHealth string
	TimeoutMS  int
}

// Timeout is the per-request deadline for remote calls.
func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// StoreConfig locates the local settings database. Empty means the XDG state dir.
type StoreConfig struct {
	Path string
}

// SyncConfig controls the autosave debounce window.
type SyncConfig struct {
	DebounceMS int
}

// Debounce returns the quiet period before a pending save fires.
func (s SyncConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// PollConfig controls the status and device polling cadence.
type PollConfig struct {
	StatusMS  int
	DevicesMS int
}

func (p PollConfig) StatusInterval() time.Duration {
	return time.Duration(p.StatusMS) * time.Millisecond
}

func (p PollConfig) DevicesInterval() time.Duration {
	return time.Duration(p.DevicesMS) * time.Millisecond
}

// UIConfig controls presentation language and where notices are shown.
type UIConfig struct {
	Language        string
	Notify          string
	NoticeTimeoutMS int
	DesktopAppName  string
}

// NoticeTimeout is how long a notice stays current before it clears.
func (u UIConfig) NoticeTimeout() time.Duration {
	return time.Duration(u.NoticeTimeoutMS) * time.Millisecond
}

// LogConfig controls rotation and verbosity of the JSONL log.
type LogConfig struct {
	MaxSizeMB  int
	MaxBackups int
	Level      string
}

// DebugConfig controls optional debug output.
type DebugConfig struct {
	EnableGRPCDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

const (
	NotifyStdout  = "stdout"
	NotifyDesktop = "desktop"
)
