package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rbright/yakutan/internal/config"
	"github.com/rbright/yakutan/internal/i18n"
	"github.com/rbright/yakutan/internal/indicator"
	"github.com/rbright/yakutan/internal/localstore"
	"github.com/rbright/yakutan/internal/panel"
	"github.com/rbright/yakutan/internal/remote"
)

// session bundles what every panel-backed command needs.
type session struct {
	panel   *panel.Panel
	store   *localstore.Store
	client  *remote.Client
	catalog *i18n.Catalog
}

// openStore opens the local store and seeds credentials from the
// environment and the configured env file.
func (r Runner) openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*localstore.Store, error) {
	path, err := config.StorePath(cfg)
	if err != nil {
		return nil, err
	}
	db, err := localstore.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := localstore.New(db)

	seeded, err := store.SeedCredentials(ctx, r.credentialLookup(cfg.EnvFile, logger))
	if err != nil {
		logger.Warn("credential seeding failed", "error", err.Error())
	}
	for _, p := range seeded {
		logger.Info("credential seeded from environment", "provider", string(p))
	}
	return store, nil
}

// credentialLookup prefers the process environment over the env file.
func (r Runner) credentialLookup(envFile string, logger *slog.Logger) func(string) (string, bool) {
	var fileVars map[string]string
	if strings.TrimSpace(envFile) != "" {
		vars, err := godotenv.Read(envFile)
		if err != nil {
			logger.Warn("env file unreadable", "path", envFile, "error", err.Error())
		} else {
			fileVars = vars
		}
	}
	return func(key string) (string, bool) {
		if v, ok := r.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}
}

func (r Runner) newClient(cfg config.Config) (*remote.Client, error) {
	return remote.New(remote.Options{BaseURL: cfg.Service.URL, Timeout: cfg.Service.Timeout()})
}

func (r Runner) newCatalog(cfg config.Config) (*i18n.Catalog, error) {
	catalog, err := i18n.Load()
	if err != nil {
		return nil, err
	}
	pref := cfg.UI.Language
	if pref == "" {
		pref, _ = r.LookupEnv("LANG")
	}
	catalog.SetLocale(pref)
	return catalog, nil
}

func (r Runner) notifier(cfg config.Config, out io.Writer, logger *slog.Logger) indicator.Notifier {
	writer := indicator.NewWriter(out)
	if cfg.UI.Notify != config.NotifyDesktop {
		return writer
	}
	return indicator.Fanout{writer, indicator.NewDesktop(cfg.UI.DesktopAppName, cfg.UI.NoticeTimeout(), logger)}
}

// openSession builds and loads a panel against the configured service.
func (r Runner) openSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*session, error) {
	store, err := r.openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	client, err := r.newClient(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	catalog, err := r.newCatalog(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	p, err := panel.New(ctx, panel.Options{
		Service:  client,
		Store:    store,
		Catalog:  catalog,
		Notifier: r.notifier(cfg, r.Stdout, logger),
		Logger:   logger,
		Debounce: cfg.Sync.Debounce(),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := p.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return &session{panel: p, store: store, client: client, catalog: catalog}, nil
}

// close flushes any pending save before releasing the store.
func (s *session) close(ctx context.Context) error {
	flushErr := s.panel.Close(context.WithoutCancel(ctx))
	return errors.Join(flushErr, s.store.Close())
}
