package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "yakutan", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "yakutan", "config.jsonc"), nil
}

// ResolveRelative anchors a path from the config file at the file's directory.
func ResolveRelative(configPath, target string) string {
	target = strings.TrimSpace(target)
	if target == "" || filepath.IsAbs(target) {
		return target
	}
	if strings.HasPrefix(target, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, target[2:])
		}
	}
	return filepath.Join(filepath.Dir(configPath), target)
}

// StorePath returns the configured store path, or store.db under the XDG state dir.
func StorePath(cfg Config) (string, error) {
	if p := strings.TrimSpace(cfg.Store.Path); p != "" {
		return p, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "yakutan", "store.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for store fallback")
	}
	return filepath.Join(home, ".local", "state", "yakutan", "store.db"), nil
}
