package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rbright/yakutan/internal/audio"
	"github.com/rbright/yakutan/internal/i18n"
	"github.com/rbright/yakutan/internal/ipc"
	"github.com/rbright/yakutan/internal/service"
	"github.com/stretchr/testify/require"
)

type runnerEnv struct {
	configPath string
	runtimeDir string
	storePath  string
	srv        *service.Server
	env        map[string]string
	catalog    *i18n.Catalog
}

type fileConfig map[string]any

// setupRunnerEnv starts a service API over httptest and writes a config
// file pointing at it. extra entries override top-level config sections.
func setupRunnerEnv(t *testing.T, extra fileConfig) *runnerEnv {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	srv := service.New(service.Options{
		Sources: func(context.Context) ([]audio.Source, error) {
			return []audio.Source{
				{Index: 4, Name: "alsa_input.usb", Description: "USB Mic", Available: true, Default: true},
				{Index: 1, Name: "alsa_input.pci", Description: "Built-in", Available: true},
			}, nil
		},
		Setenv: func(string, string) error { return nil },
		Getenv: func(string) string { return "" },
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	storePath := filepath.Join(dir, "store.db")
	cfg := fileConfig{
		"service": map[string]any{"url": ts.URL + "/api", "timeout_ms": 2000},
		"store":   map[string]any{"path": storePath},
		"sync":    map[string]any{"debounce_ms": 20},
		"ui":      map[string]any{"language": "en"},
	}
	for k, v := range extra {
		cfg[k] = v
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	configPath := filepath.Join(dir, "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, data, 0o600))

	catalog := i18n.MustLoad()
	catalog.SetLocale(i18n.LocaleEnglish)

	return &runnerEnv{
		configPath: configPath,
		runtimeDir: runtimeDir,
		storePath:  storePath,
		srv:        srv,
		env:        map[string]string{},
		catalog:    catalog,
	}
}

func (e *runnerEnv) run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	runner := Runner{
		Stdout: &stdout,
		Stderr: &stderr,
		Stdin:  strings.NewReader(stdin),
		LookupEnv: func(key string) (string, bool) {
			v, ok := e.env[key]
			return v, ok
		},
	}
	code := runner.Execute(context.Background(), append([]string{"--config", e.configPath}, args...))
	return code, stdout.String(), stderr.String()
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestExecuteHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "yakutan")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteBrokenConfig(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"riva": {}}`), 0o600))

	var stdout, stderr bytes.Buffer
	exitCode := Execute(context.Background(), []string{"--config", path, "status"}, &stdout, &stderr)
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "unknown field")
}

func TestStatusReportsServiceState(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, stdout, stderr := env.run(t, "", "status")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "stopped (qwen)\n", stdout)
}

func TestStatusUnavailableService(t *testing.T) {
	env := setupRunnerEnv(t, fileConfig{
		"service": map[string]any{"url": "http://" + closedAddr(t) + "/api", "timeout_ms": 500},
	})

	code, stdout, _ := env.run(t, "", "status")
	require.Equal(t, 1, code)
	require.Equal(t, "unavailable\n", stdout)
}

func TestSetSavesLocallyAndSyncs(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, stdout, stderr := env.run(t, "", "set", "target_language=ko", "enable_translation=false")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, env.catalog.T("msg.configSaved", nil))

	remote := env.srv.Config()
	require.Equal(t, "ko", remote.Translation.TargetLanguage)
	require.False(t, remote.Translation.Enabled)

	code, stdout, stderr = env.run(t, "", "config")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, `"target_language": "ko"`)
	require.Contains(t, stdout, "saved ")
	require.Contains(t, stdout, "dashscope: (unset)")
}

func TestSetRejectsInvalidValue(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, _, stderr := env.run(t, "", "set", "vad_threshold=loud")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "vad_threshold")

	code, _, stderr = env.run(t, "", "set", "no_such_field=1")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unknown field")

	code, _, stderr = env.run(t, "", "set", "asr_backend")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "field=value")
}

func TestStartRequiresDashScopeKey(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, stdout, _ := env.run(t, "", "start")
	require.Equal(t, 1, code)
	require.Contains(t, stdout, env.catalog.T("msg.dashscopeRequired", nil))
	require.False(t, env.srv.Running())
}

func TestStartWithKeyFromEnvFileThenStop(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "keys.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DASHSCOPE_API_KEY=sk-from-file\n"), 0o600))
	env := setupRunnerEnv(t, fileConfig{"env_file": envFile})

	code, stdout, stderr := env.run(t, "", "start")
	require.Equal(t, 0, code, stdout+stderr)
	require.Contains(t, stdout, env.catalog.T("msg.serviceStartSuccess", nil))
	require.True(t, env.srv.Running())

	code, stdout, _ = env.run(t, "", "config")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "dashscope: sk-******le")

	code, _, stderr = env.run(t, "", "start")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, env.catalog.T("msg.serviceAlreadyRunning", nil))

	code, stdout, _ = env.run(t, "", "stop")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, env.catalog.T("msg.serviceStopSuccess", nil))
	require.False(t, env.srv.Running())
}

func TestProcessEnvironmentWinsOverEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "keys.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DASHSCOPE_API_KEY=sk-from-file\n"), 0o600))
	env := setupRunnerEnv(t, fileConfig{"env_file": envFile})
	env.env["DASHSCOPE_API_KEY"] = "sk-from-process"

	code, stdout, _ := env.run(t, "", "config")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "dashscope: sk-******ss")
}

func TestStopWhenNotRunning(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, _, stderr := env.run(t, "", "stop")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, env.catalog.T("msg.serviceNotRunning", nil))
}

func TestRestartWhenNotRunningIsReported(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, _, stderr := env.run(t, "", "restart")
	require.Equal(t, 1, code)
	require.NotEmpty(t, stderr)
}

func TestDevicesListsServiceInputs(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, stdout, stderr := env.run(t, "", "devices")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "4 USB Mic (default)")
	require.Contains(t, stdout, "1 Built-in")
}

func TestCheckKey(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, stdout, _ := env.run(t, "", "check-key", "bad")
	require.Equal(t, 1, code)
	require.Contains(t, stdout, env.catalog.T("msg.dashscopeValidationFailed", nil)+env.catalog.T("msg.invalidKeyFormat", nil))

	code, stdout, _ = env.run(t, "", "check-key", "sk-abc")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, env.catalog.T("msg.keyFormatValid", nil))

	code, stdout, _ = env.run(t, "", "check-key")
	require.Equal(t, 1, code)
	require.Contains(t, stdout, env.catalog.T("msg.enterDashscopeKey", nil))
}

func TestPanelREPL(t *testing.T) {
	env := setupRunnerEnv(t, fileConfig{
		"poll": map[string]any{"status_ms": 50, "devices_ms": 50},
	})

	script := strings.Join([]string{
		"set target_language fr",
		"save",
		"show",
		"devices",
		"bogus",
		"quit",
	}, "\n") + "\n"

	code, stdout, stderr := env.run(t, script, "panel")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "commands:")
	require.Contains(t, stdout, env.catalog.T("msg.configSaved", nil))
	require.Contains(t, stdout, "target_language")
	require.Contains(t, stdout, "controls: stopped")
	require.Contains(t, stdout, "USB Mic")
	require.Contains(t, stdout, `unknown command "bogus"`)
	require.Equal(t, "fr", env.srv.Config().Translation.TargetLanguage)
}

func TestPanelREPLSwitchesLanguage(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, stdout, _ := env.run(t, "lang zh-CN\n", "panel")
	require.Equal(t, 0, code)

	zh := i18n.MustLoad()
	zh.SetLocale(i18n.LocaleChinese)
	require.Contains(t, stdout, zh.T("msg.languageChanged", map[string]string{"lang": "zh-CN"}))
}

func TestServeAndShutdown(t *testing.T) {
	env := setupRunnerEnv(t, fileConfig{
		"service": map[string]any{"listen": "127.0.0.1:0", "grpc_health": "127.0.0.1:0"},
	})
	socketPath := filepath.Join(env.runtimeDir, "yakutan.sock")

	var serveOut, serveErr bytes.Buffer
	done := make(chan int, 1)
	go func() {
		runner := Runner{Stdout: &serveOut, Stderr: &serveErr}
		done <- runner.Execute(context.Background(), []string{"--config", env.configPath, "serve"})
	}()

	require.Eventually(t, func() bool {
		alive, _ := ipc.Probe(context.Background(), socketPath, 100*time.Millisecond)
		return alive
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := ipc.Send(context.Background(), socketPath, ipc.NewRequest(ipc.CommandStatus), time.Second)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.False(t, resp.Running)
	require.NotEmpty(t, resp.Addr)
	require.NotEmpty(t, resp.HealthAddr)

	code, stdout, stderr := env.run(t, "", "shutdown")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "shutting down")

	select {
	case exit := <-done:
		require.Equal(t, 0, exit, serveErr.String())
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not exit")
	}
	require.Contains(t, serveOut.String(), "listening on 127.0.0.1:")
	require.Contains(t, serveOut.String(), "stopped")

	_, statErr := os.Stat(socketPath)
	require.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestShutdownWithoutServer(t *testing.T) {
	env := setupRunnerEnv(t, nil)

	code, _, stderr := env.run(t, "", "shutdown")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "no running yakutan server")
}

func TestDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	env := setupRunnerEnv(t, fileConfig{
		"service": map[string]any{
			"url":         "http://" + closedAddr(t) + "/api",
			"grpc_health": closedAddr(t),
			"timeout_ms":  300,
		},
	})
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	code, stdout, _ := env.run(t, "", "doctor")
	require.Equal(t, 1, code)
	require.Contains(t, stdout, "[OK] config: loaded")
	require.Contains(t, stdout, "[FAIL] service.api")
	require.Contains(t, stdout, "[FAIL] service.health")
	require.Contains(t, stdout, "[FAIL] audio.devices")
}

func TestLevelFromString(t *testing.T) {
	require.Equal(t, "DEBUG", levelFromString("debug").String())
	require.Equal(t, "WARN", levelFromString(" WARN ").String())
	require.Equal(t, "ERROR", levelFromString("error").String())
	require.Equal(t, "INFO", levelFromString("").String())
}

func TestReadLinesStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lines := readLines(ctx, strings.NewReader(strings.Repeat("show\n", 1000)))

	received := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				require.Less(t, received, 1000)
				return
			}
			received++
		case <-deadline:
			t.Fatal("line reader did not stop")
		}
	}
}

func TestReadLinesDeliversUntilEOF(t *testing.T) {
	lines := readLines(context.Background(), strings.NewReader("show\nquit\n"))

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	require.Equal(t, []string{"show", "quit"}, got)
}
