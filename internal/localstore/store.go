package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/yakutan/internal/settings"
)

const (
	KeyConfig          = "yakutan_config"
	KeyConfigTimestamp = "yakutan_config_timestamp"
	KeyInternational   = "use_international_endpoint"
	KeyUILanguage      = "ui_language"
)

// CredentialKey is the flat key holding a provider credential.
func CredentialKey(p settings.Provider) string {
	return string(p) + "_api_key"
}

// Snapshot is the stored configuration and when it was written.
type Snapshot struct {
	Config  settings.Configuration
	SavedAt time.Time
}

// Store maps panel state onto the flat key layout of a KV backend.
type Store struct {
	kv  KV
	now func() time.Time
}

// New wraps a backend.
func New(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// SaveConfig writes the configuration and then its timestamp.
func (s *Store) SaveConfig(ctx context.Context, cfg settings.Configuration) error {
	data, err := settings.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	if err := s.kv.Set(ctx, KeyConfig, string(data)); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.kv.Set(ctx, KeyConfigTimestamp, stamp); err != nil {
		return fmt.Errorf("save configuration timestamp: %w", err)
	}
	return nil
}

// LoadConfig returns the stored snapshot; ok is false when none exists.
func (s *Store) LoadConfig(ctx context.Context) (Snapshot, bool, error) {
	raw, ok, err := s.kv.Get(ctx, KeyConfig)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load configuration: %w", err)
	}
	if !ok {
		return Snapshot{}, false, nil
	}
	cfg, err := settings.Unmarshal([]byte(raw))
	if err != nil {
		return Snapshot{}, false, err
	}

	snap := Snapshot{Config: cfg}
	if stamp, ok, err := s.kv.Get(ctx, KeyConfigTimestamp); err == nil && ok {
		if parsed, perr := time.Parse(time.RFC3339Nano, stamp); perr == nil {
			snap.SavedAt = parsed
		}
	}
	return snap, true, nil
}

// Credentials returns every stored credential.
func (s *Store) Credentials(ctx context.Context) (settings.CredentialSet, error) {
	var set settings.CredentialSet
	for _, p := range settings.CredentialProviders {
		v, ok, err := s.kv.Get(ctx, CredentialKey(p))
		if err != nil {
			return settings.CredentialSet{}, fmt.Errorf("load %s credential: %w", p, err)
		}
		if ok {
			set = set.With(p, v)
		}
	}
	return set, nil
}

// SetCredential stores one credential; a blank value removes it.
func (s *Store) SetCredential(ctx context.Context, p settings.Provider, value string) error {
	key := CredentialKey(p)
	if strings.TrimSpace(value) == "" {
		if err := s.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear %s credential: %w", p, err)
		}
		return nil
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		return fmt.Errorf("save %s credential: %w", p, err)
	}
	return nil
}

// SeedCredentials fills absent credentials from env-style variables and
// returns the providers it filled. Stored values always win.
func (s *Store) SeedCredentials(ctx context.Context, lookup func(string) (string, bool)) ([]settings.Provider, error) {
	current, err := s.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	var seeded []settings.Provider
	for _, p := range settings.CredentialProviders {
		if current.Has(p) {
			continue
		}
		value, ok := lookup(p.EnvVar())
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if err := s.SetCredential(ctx, p, strings.TrimSpace(value)); err != nil {
			return seeded, err
		}
		seeded = append(seeded, p)
	}
	return seeded, nil
}

// International returns the stored endpoint flag; ok is false when unset.
func (s *Store) International(ctx context.Context) (value bool, ok bool, err error) {
	raw, ok, err := s.kv.Get(ctx, KeyInternational)
	if err != nil || !ok {
		return false, false, err
	}
	return raw == "true", true, nil
}

// SetInternational stores the endpoint flag as "true" or "false".
func (s *Store) SetInternational(ctx context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	if err := s.kv.Set(ctx, KeyInternational, value); err != nil {
		return fmt.Errorf("save international flag: %w", err)
	}
	return nil
}

// Language returns the stored UI language code, empty when unset.
func (s *Store) Language(ctx context.Context) (string, error) {
	raw, _, err := s.kv.Get(ctx, KeyUILanguage)
	return raw, err
}

// SetLanguage stores the UI language code.
func (s *Store) SetLanguage(ctx context.Context, code string) error {
	return s.kv.Set(ctx, KeyUILanguage, code)
}

// Dump returns the raw stored configuration JSON, pretty printed.
func (s *Store) Dump(ctx context.Context) (string, error) {
	raw, ok, err := s.kv.Get(ctx, KeyConfig)
	if err != nil || !ok {
		return "", err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, nil
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw, nil
	}
	return string(pretty), nil
}
