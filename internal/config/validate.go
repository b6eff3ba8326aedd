package config

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Service.URL) == "" {
		return nil, fmt.Errorf("service.url must not be empty")
	}
	u, err := url.Parse(cfg.Service.URL)
	if err != nil {
		return nil, fmt.Errorf("service.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("service.url must use http or https")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("service.url must include a host")
	}
	if strings.TrimSpace(cfg.Service.Listen) == "" {
		return nil, fmt.Errorf("service.listen must not be empty")
	}
	if cfg.Service.TimeoutMS <= 0 {
		return nil, fmt.Errorf("service.timeout_ms must be > 0")
	}
	if strings.TrimSpace(cfg.Service.GRPCHealth) == "" {
		warnings = append(warnings, Warning{Message: "service.grpc_health is empty; gRPC health endpoint disabled"})
	}

	if cfg.Sync.DebounceMS < 0 {
		return nil, fmt.Errorf("sync.debounce_ms must be >= 0")
	}
	if cfg.Sync.DebounceMS == 0 {
		warnings = append(warnings, Warning{Message: "sync.debounce_ms is 0; every edit triggers a save"})
	}
	if cfg.Poll.StatusMS <= 0 {
		return nil, fmt.Errorf("poll.status_ms must be > 0")
	}
	if cfg.Poll.DevicesMS <= 0 {
		return nil, fmt.Errorf("poll.devices_ms must be > 0")
	}

	notify := strings.ToLower(strings.TrimSpace(cfg.UI.Notify))
	if notify != NotifyStdout && notify != NotifyDesktop {
		return nil, fmt.Errorf("ui.notify must be one of: stdout, desktop")
	}
	if notify == NotifyDesktop && strings.TrimSpace(cfg.UI.DesktopAppName) == "" {
		return nil, fmt.Errorf("ui.desktop_app_name must not be empty when ui.notify=desktop")
	}
	if cfg.UI.NoticeTimeoutMS < 0 {
		return nil, fmt.Errorf("ui.notice_timeout_ms must be >= 0")
	}
	if lang := strings.TrimSpace(cfg.UI.Language); lang != "" {
		if _, err := language.Parse(lang); err != nil {
			return nil, fmt.Errorf("ui.language %q is not a valid language tag", lang)
		}
	}

	if cfg.Log.MaxSizeMB <= 0 {
		return nil, fmt.Errorf("log.max_size_mb must be > 0")
	}
	if cfg.Log.MaxBackups < 0 {
		return nil, fmt.Errorf("log.max_backups must be >= 0")
	}
	if !logLevels[strings.ToLower(strings.TrimSpace(cfg.Log.Level))] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}
