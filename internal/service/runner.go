package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rbright/yakutan/internal/settings"
)

// Runner is the recognition and translation pipeline behind the API.
type Runner interface {
	Start(ctx context.Context, cfg settings.Configuration) error
	Stop(ctx context.Context) error
	// Reload hands a running pipeline a new configuration it can apply
	// without a restart.
	Reload(cfg settings.Configuration)
}

// LogRunner stands in for the pipeline: it records lifecycle calls in the
// log and keeps the last configuration it was given.
type LogRunner struct {
	logger *slog.Logger

	mu      sync.Mutex
	current settings.Configuration
	starts  int
	reloads int
}

// NewLogRunner returns a LogRunner. A nil logger discards.
func NewLogRunner(logger *slog.Logger) *LogRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogRunner{logger: logger}
}

func (r *LogRunner) Start(_ context.Context, cfg settings.Configuration) error {
	r.mu.Lock()
	r.current = cfg
	r.starts++
	r.mu.Unlock()

	r.logger.Info("pipeline started",
		"backend", cfg.ASR.Backend,
		"api_type", cfg.Translation.Provider.Encode(),
		"partial_translation", cfg.Translation.Provider.PartialResults(),
		"detector", cfg.LanguageDetector.Type,
		"international", cfg.ASR.UseInternationalEndpoint,
	)
	return nil
}

func (r *LogRunner) Stop(context.Context) error {
	r.logger.Info("pipeline stopped")
	return nil
}

func (r *LogRunner) Reload(cfg settings.Configuration) {
	r.mu.Lock()
	r.current = cfg
	r.reloads++
	r.mu.Unlock()
	r.logger.Info("pipeline reloaded translator", "api_type", cfg.Translation.Provider.Encode())
}

// Current returns the last configuration passed to Start or Reload.
func (r *LogRunner) Current() settings.Configuration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Counts returns how many starts and reloads were seen.
func (r *LogRunner) Counts() (starts, reloads int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.reloads
}
