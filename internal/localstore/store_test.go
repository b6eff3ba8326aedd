package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/yakutan/internal/settings"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]KV{"memory": NewMemory(), "sqlite": db}
}

func TestConfigRoundTrip(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := New(kv)
			fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			store.now = func() time.Time { return fixed }

			_, ok, err := store.LoadConfig(ctx)
			require.NoError(t, err)
			require.False(t, ok)

			cfg := settings.Default()
			cfg.Translation.Provider = settings.ProviderChoice{Base: settings.ProviderOpenRouter, Streaming: true}
			cfg.Translation.FallbackLanguage = nil
			require.NoError(t, store.SaveConfig(ctx, cfg))

			snap, ok, err := store.LoadConfig(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, cfg, snap.Config)
			require.True(t, fixed.Equal(snap.SavedAt))

			raw, ok, err := kv.Get(ctx, KeyConfig)
			require.NoError(t, err)
			require.True(t, ok)
			require.Contains(t, raw, `"api_type":"openrouter_streaming"`)
		})
	}
}

func TestLoadConfigRejectsCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	require.NoError(t, kv.Set(ctx, KeyConfig, "{broken"))

	_, ok, err := New(kv).LoadConfig(ctx)
	require.Error(t, err)
	require.False(t, ok)
}

func TestCredentials(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := New(kv)

			require.NoError(t, store.SetCredential(ctx, settings.ProviderKeyDashScope, "sk-123"))
			require.NoError(t, store.SetCredential(ctx, settings.ProviderKeyDeepL, "dl"))

			set, err := store.Credentials(ctx)
			require.NoError(t, err)
			require.Equal(t, "sk-123", set.DashScope)
			require.Equal(t, "dl", set.DeepL)
			require.Empty(t, set.Soniox)

			raw, ok, err := kv.Get(ctx, "dashscope_api_key")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "sk-123", raw)

			require.NoError(t, store.SetCredential(ctx, settings.ProviderKeyDeepL, "  "))
			set, err = store.Credentials(ctx)
			require.NoError(t, err)
			require.Empty(t, set.DeepL)
		})
	}
}

func TestSeedCredentialsKeepsStoredValues(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemory())
	require.NoError(t, store.SetCredential(ctx, settings.ProviderKeyDashScope, "sk-stored"))

	env := map[string]string{
		"DASHSCOPE_API_KEY": "sk-env",
		"SONIOX_API_KEY":    " son ",
		"DEEPL_API_KEY":     "",
	}
	seeded, err := store.SeedCredentials(ctx, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	require.Equal(t, []settings.Provider{settings.ProviderKeySoniox}, seeded)

	set, err := store.Credentials(ctx)
	require.NoError(t, err)
	require.Equal(t, "sk-stored", set.DashScope)
	require.Equal(t, "son", set.Soniox)
	require.Empty(t, set.DeepL)
}

func TestInternationalFlagStoredAsLiteralStrings(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := New(kv)

			_, ok, err := store.International(ctx)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.SetInternational(ctx, true))
			raw, _, err := kv.Get(ctx, KeyInternational)
			require.NoError(t, err)
			require.Equal(t, "true", raw)

			require.NoError(t, store.SetInternational(ctx, false))
			raw, _, err = kv.Get(ctx, KeyInternational)
			require.NoError(t, err)
			require.Equal(t, "false", raw)

			enabled, ok, err := store.International(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.False(t, enabled)
		})
	}
}

func TestLanguage(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemory())

	code, err := store.Language(ctx)
	require.NoError(t, err)
	require.Empty(t, code)

	require.NoError(t, store.SetLanguage(ctx, "en"))
	code, err = store.Language(ctx)
	require.NoError(t, err)
	require.Equal(t, "en", code)
}

func TestDumpPrettyPrintsConfig(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemory())

	out, err := store.Dump(ctx)
	require.NoError(t, err)
	require.Empty(t, out)

	require.NoError(t, store.SaveConfig(ctx, settings.Default()))
	out, err = store.Dump(ctx)
	require.NoError(t, err)
	require.Contains(t, out, "\n  \"asr\": {")
}

func TestClosedBackendsFail(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Close())
			err := New(kv).SaveConfig(context.Background(), settings.Default())
			require.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	require.Equal(t, path, db.Path())
	require.NoError(t, db.Set(ctx, "k", "v1"))
	require.NoError(t, db.Set(ctx, "k", "v2"))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	v, ok, err := db.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)

	require.NoError(t, db.Delete(ctx, "k"))
	_, ok, err = db.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite(" ")
	require.Error(t, err)
}
