package doctor

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/yakutan/internal/audio"
	"github.com/rbright/yakutan/internal/config"
	"github.com/rbright/yakutan/internal/localstore"
	"github.com/rbright/yakutan/internal/service"
	"github.com/rbright/yakutan/internal/settings"
	"github.com/stretchr/testify/require"
)

func startService(t *testing.T) *service.Server {
	t.Helper()

	srv := service.New(service.Options{Addr: "127.0.0.1:0", HealthAddr: "127.0.0.1:0"})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckConfigMentionsMissingFileAndWarnings(t *testing.T) {
	check := checkConfig(config.Loaded{
		Path:     "/tmp/none.jsonc",
		Exists:   false,
		Warnings: []config.Warning{{Message: `config file "/tmp/none.jsonc" not found; using defaults`}, {Message: "sync.debounce_ms is 0"}},
	})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "not found; using defaults")
	require.Contains(t, check.Message, "sync.debounce_ms is 0")
}

func TestCheckEnvFile(t *testing.T) {
	require.True(t, checkEnvFile("").Pass)

	missing := checkEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	require.False(t, missing.Pass)

	path := filepath.Join(t.TempDir(), "keys.env")
	require.NoError(t, os.WriteFile(path, []byte("DASHSCOPE_API_KEY=sk-1\n"), 0o600))
	found := checkEnvFile(path)
	require.True(t, found.Pass)
	require.Contains(t, found.Message, path)
}

func TestCheckStoreReportsSavedAgo(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "store.db")

	empty := checkStore(context.Background(), cfg)
	require.True(t, empty.Pass)
	require.Contains(t, empty.Message, "no saved configuration")

	db, err := localstore.OpenSQLite(cfg.Store.Path)
	require.NoError(t, err)
	store := localstore.New(db)
	require.NoError(t, store.SaveConfig(context.Background(), settings.Default()))
	require.NoError(t, store.Close())

	saved := checkStore(context.Background(), cfg)
	require.True(t, saved.Pass)
	require.Contains(t, saved.Message, "(saved ")
	require.NotContains(t, saved.Message, "no saved configuration")
}

func TestCheckServiceAPIAgainstRunningService(t *testing.T) {
	srv := startService(t)
	cfg := config.Default()
	cfg.Service.URL = "http://" + srv.Addr() + "/api"

	check := checkServiceAPI(context.Background(), cfg)
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "stopped at")
}

func TestCheckServiceAPIUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Service.URL = "http://" + closedAddr(t) + "/api"
	cfg.Service.TimeoutMS = 500

	check := checkServiceAPI(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "unreachable")
}

func TestCheckHealthDumpsResponse(t *testing.T) {
	srv := startService(t)
	cfg := config.Default()
	cfg.Service.GRPCHealth = srv.HealthAddr()
	cfg.Debug.EnableGRPCDump = true

	check := checkHealth(context.Background(), cfg)
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "NOT_SERVING")
	require.Contains(t, check.Message, `"status"`)
}

func TestCheckHealthUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Service.GRPCHealth = closedAddr(t)
	cfg.Service.TimeoutMS = 200

	check := checkHealth(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Equal(t, "service.health", check.Name)
}

func TestCheckAudioSources(t *testing.T) {
	failing := checkAudioSources(context.Background(), func(context.Context) ([]audio.Source, error) {
		return nil, errors.New("connection refused")
	})
	require.False(t, failing.Pass)
	require.Contains(t, failing.Message, "connection refused")

	onlyMonitors := checkAudioSources(context.Background(), func(context.Context) ([]audio.Source, error) {
		return []audio.Source{{Index: 0, Name: "alsa_output.pci.monitor", Available: true}}, nil
	})
	require.False(t, onlyMonitors.Pass)

	ok := checkAudioSources(context.Background(), func(context.Context) ([]audio.Source, error) {
		return []audio.Source{
			{Index: 0, Name: "alsa_output.pci.monitor", Available: true},
			{Index: 3, Name: "alsa_input.usb", Description: "USB Mic", Available: true, Default: true},
		}, nil
	})
	require.True(t, ok.Pass)
	require.Contains(t, ok.Message, "1 input device(s)")
	require.Contains(t, ok.Message, `default "USB Mic"`)
}

func TestRunSkipsHealthWhenDisabled(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	srv := startService(t)

	cfg := config.Default()
	cfg.Service.URL = "http://" + srv.Addr() + "/api"
	cfg.Service.GRPCHealth = ""
	cfg.Service.TimeoutMS = 1000
	cfg.Store.Path = filepath.Join(t.TempDir(), "store.db")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report := Run(ctx, config.Loaded{Path: "/tmp/config.jsonc", Config: cfg, Exists: true})

	names := make([]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"config", "env_file", "store", "service.api", "audio.devices"}, names)
	require.False(t, report.OK(), "audio is unavailable in this environment")
}
