// Package doctor runs readiness diagnostics for config, store, service, and audio.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rbright/yakutan/internal/audio"
	"github.com/rbright/yakutan/internal/config"
	"github.com/rbright/yakutan/internal/health"
	"github.com/rbright/yakutan/internal/localstore"
	"github.com/rbright/yakutan/internal/remote"
	"github.com/rbright/yakutan/internal/service"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config/store/service/audio checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkEnvFile(cfg.EnvFile))
	checks = append(checks, checkStore(ctx, cfg))
	checks = append(checks, checkServiceAPI(ctx, cfg))
	if strings.TrimSpace(cfg.Service.GRPCHealth) != "" {
		checks = append(checks, checkHealth(ctx, cfg))
	}
	checks = append(checks, checkAudioSources(ctx, audio.ListSources))

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	for _, w := range loaded.Warnings {
		if !loaded.Exists && strings.Contains(w.Message, "not found") {
			continue
		}
		message += "; " + w.Message
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkEnvFile verifies a configured credential env file is readable.
func checkEnvFile(path string) Check {
	if strings.TrimSpace(path) == "" {
		return Check{Name: "env_file", Pass: true, Message: "not configured"}
	}
	f, err := os.Open(path)
	if err != nil {
		return Check{Name: "env_file", Pass: false, Message: err.Error()}
	}
	_ = f.Close()
	return Check{Name: "env_file", Pass: true, Message: fmt.Sprintf("readable at %s", path)}
}

// checkStore opens the local store and reports when the config was last saved.
func checkStore(ctx context.Context, cfg config.Config) Check {
	path, err := config.StorePath(cfg)
	if err != nil {
		return Check{Name: "store", Pass: false, Message: err.Error()}
	}
	db, err := localstore.OpenSQLite(path)
	if err != nil {
		return Check{Name: "store", Pass: false, Message: err.Error()}
	}
	store := localstore.New(db)
	defer store.Close()

	snap, ok, err := store.LoadConfig(ctx)
	if err != nil {
		return Check{Name: "store", Pass: false, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	if !ok {
		return Check{Name: "store", Pass: true, Message: fmt.Sprintf("%s (no saved configuration)", path)}
	}
	if snap.SavedAt.IsZero() {
		return Check{Name: "store", Pass: true, Message: fmt.Sprintf("%s (configuration saved)", path)}
	}
	return Check{Name: "store", Pass: true, Message: fmt.Sprintf("%s (saved %s)", path, humanize.Time(snap.SavedAt))}
}

// checkServiceAPI asks the translation service whether its pipeline runs.
func checkServiceAPI(ctx context.Context, cfg config.Config) Check {
	client, err := remote.New(remote.Options{BaseURL: cfg.Service.URL, Timeout: timeoutOr(cfg.Service.Timeout())})
	if err != nil {
		return Check{Name: "service.api", Pass: false, Message: err.Error()}
	}
	status, err := client.Status(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrUnavailable) {
			return Check{Name: "service.api", Pass: false, Message: fmt.Sprintf("unreachable at %s", client.BaseURL())}
		}
		return Check{Name: "service.api", Pass: false, Message: err.Error()}
	}
	state := "stopped"
	if status.Running {
		state = "running"
	}
	return Check{Name: "service.api", Pass: true, Message: fmt.Sprintf("%s at %s", state, client.BaseURL())}
}

// checkHealth probes the gRPC health endpoint. A reachable endpoint passes
// whether or not the pipeline currently serves.
func checkHealth(ctx context.Context, cfg config.Config) Check {
	result, err := health.Probe(ctx, health.Options{
		Endpoint: cfg.Service.GRPCHealth,
		Service:  service.HealthService,
		Timeout:  timeoutOr(cfg.Service.Timeout()),
		Dump:     cfg.Debug.EnableGRPCDump,
	})
	if err != nil {
		return Check{Name: "service.health", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("%s reports %s", result.Endpoint, result.Status.String())
	if result.JSON != "" {
		message += " " + result.JSON
	}
	return Check{Name: "service.health", Pass: true, Message: message}
}

// checkAudioSources enumerates capture sources through the sound server.
func checkAudioSources(ctx context.Context, list func(context.Context) ([]audio.Source, error)) Check {
	sources, err := list(ctx)
	if err != nil {
		return Check{Name: "audio.devices", Pass: false, Message: err.Error()}
	}
	inputs, defaultIndex := audio.Inputs(sources)
	if len(inputs) == 0 {
		return Check{Name: "audio.devices", Pass: false, Message: "no capture sources available"}
	}
	message := fmt.Sprintf("%d input device(s)", len(inputs))
	if defaultIndex != nil {
		for _, in := range inputs {
			if in.Index == *defaultIndex {
				message += fmt.Sprintf(", default %q", in.Name)
				break
			}
		}
	}
	return Check{Name: "audio.devices", Pass: true, Message: message}
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 2 * time.Second
	}
	return d
}
