// Package panel is the control panel core: it keeps the configuration in
// step between the local store and the service, and gates service start.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/yakutan/internal/assemble"
	"github.com/rbright/yakutan/internal/fields"
	"github.com/rbright/yakutan/internal/i18n"
	"github.com/rbright/yakutan/internal/indicator"
	"github.com/rbright/yakutan/internal/localstore"
	"github.com/rbright/yakutan/internal/remote"
	"github.com/rbright/yakutan/internal/settings"
)

// Service is the remote service API the panel drives.
type Service interface {
	Status(ctx context.Context) (remote.Status, error)
	Config(ctx context.Context) (settings.Configuration, error)
	SetConfig(ctx context.Context, cfg settings.Configuration) (remote.Result, error)
	Start(ctx context.Context, keys settings.CredentialSet) (remote.Result, error)
	Stop(ctx context.Context) (remote.Result, error)
	Restart(ctx context.Context) (remote.Result, error)
	CheckCredential(ctx context.Context, key string) (remote.CredentialCheck, error)
	InputDevices(ctx context.Context) (remote.DeviceList, error)
}

// Options configures a Panel.
type Options struct {
	Service  Service
	Store    *localstore.Store
	Catalog  *i18n.Catalog
	Notifier indicator.Notifier
	Logger   *slog.Logger
	Debounce time.Duration
}

// Panel is one control-panel session.
type Panel struct {
	form     *fields.Form
	store    *localstore.Store
	service  Service
	catalog  *i18n.Catalog
	report   *reporter
	logger   *slog.Logger
	controls *Controls
	sync     *Sync
	life     *Lifecycle

	wake chan struct{}

	mu       sync.Mutex
	previous settings.ProviderBase
	status   StatusSnapshot
	devices  DeviceSnapshot
}

// New builds a panel. ctx bounds the debounced saves.
func New(ctx context.Context, opts Options) (*Panel, error) {
	if opts.Service == nil {
		return nil, errors.New("panel: service is required")
	}
	if opts.Store == nil {
		return nil, errors.New("panel: store is required")
	}
	catalog := opts.Catalog
	if catalog == nil {
		var err error
		if catalog, err = i18n.Load(); err != nil {
			return nil, err
		}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = indicator.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Panel{
		form:     fields.NewForm(),
		store:    opts.Store,
		service:  opts.Service,
		catalog:  catalog,
		report:   &reporter{notifier: notifier, catalog: catalog, logger: logger},
		logger:   logger,
		controls: newControls(logger),
		wake:     make(chan struct{}, 1),
	}
	p.life = &Lifecycle{
		form:     p.form,
		store:    p.store,
		service:  p.service,
		report:   p.report,
		controls: p.controls,
		logger:   logger,
		refresh:  p.requestRefresh,
		substituted: func(base settings.ProviderBase) {
			p.mu.Lock()
			p.previous = base
			p.mu.Unlock()
		},
	}
	p.sync = newSync(ctx, opts.Debounce, p.form, p.store, p.service, p.report, p.life.Restart)
	return p, nil
}

// Load fills the form at session start.
//
// The local snapshot wins; the service configuration is used only when
// nothing is stored locally, and the defaults when neither is available.
// The stored international flag overrides the snapshot.
func (p *Panel) Load(ctx context.Context) error {
	cfg, source := p.initialConfig(ctx)

	intl, ok, err := p.store.International(ctx)
	switch {
	case err != nil:
		p.logger.Warn("load international flag failed", "error", err.Error())
	case ok:
		cfg.ASR.UseInternationalEndpoint = intl
	}

	cfg, coerced := settings.Coerce(cfg)
	if err := assemble.Populate(p.form, cfg); err != nil {
		p.logger.Warn("stored configuration has rejected values", "error", err.Error())
	}
	if coerced {
		if err := p.store.SaveConfig(ctx, assemble.Assemble(p.form)); err != nil {
			p.logger.Warn("persist coerced configuration failed", "error", err.Error())
		}
	}

	creds, err := p.store.Credentials(ctx)
	if err != nil {
		p.logger.Warn("load credentials failed", "error", err.Error())
	}
	for _, provider := range settings.CredentialProviders {
		if id, ok := fields.CredentialField(provider); ok {
			_ = p.form.Set(id, creds.Get(provider))
		}
	}

	if lang, err := p.store.Language(ctx); err != nil {
		p.logger.Warn("load ui language failed", "error", err.Error())
	} else if lang != "" {
		p.catalog.SetLocale(lang)
	}

	p.mu.Lock()
	p.previous = settings.ProviderBase(p.form.String(fields.TranslationAPI))
	p.mu.Unlock()

	p.logger.Info("panel loaded",
		"source", source,
		"backend", cfg.ASR.Backend,
		"api_type", cfg.Translation.Provider.Encode(),
		"locale", p.catalog.Locale(),
	)
	return nil
}

func (p *Panel) initialConfig(ctx context.Context) (settings.Configuration, string) {
	snap, ok, err := p.store.LoadConfig(ctx)
	if err != nil {
		p.logger.Warn("load local configuration failed", "error", err.Error())
	}
	if ok {
		return snap.Config, "local"
	}

	cfg, err := p.service.Config(ctx)
	if err == nil {
		return cfg, "service"
	}
	p.logger.Debug("service configuration unavailable", "error", err.Error())
	return settings.Default(), "defaults"
}

// Set is the single ingestion point for field edits.
//
// Credentials are written to the local store at once and never start a save
// cycle. Every other accepted edit becomes a change event for the debounced
// save cycle.
func (p *Panel) Set(ctx context.Context, id fields.ID, value any) error {
	spec, ok := fields.Lookup(id)
	if !ok {
		return fmt.Errorf("unknown field %q", id)
	}
	if spec.Kind == fields.KindSecret {
		return p.setCredential(ctx, spec, value)
	}

	switch id {
	case fields.TranslationAPI:
		return p.setProvider(ctx, value)
	case fields.International:
		return p.setInternational(ctx, value)
	case fields.ASRBackend:
		if s, ok := value.(string); ok && settings.Backend(strings.TrimSpace(s)) == settings.BackendDashScope && p.form.Bool(fields.International) {
			value = string(settings.BackendQwen)
			p.report.notice(ctx, indicator.LevelInfo, p.report.t("msg.backendSwitchedToQwen", nil))
		}
	}

	if err := p.form.Set(id, value); err != nil {
		return err
	}
	p.changed(id)
	return nil
}

// SetText parses raw input for the field and passes it to Set.
func (p *Panel) SetText(ctx context.Context, id fields.ID, raw string) error {
	spec, ok := fields.Lookup(id)
	if !ok {
		return fmt.Errorf("unknown field %q", id)
	}
	value, err := fields.Parse(spec, raw)
	if err != nil {
		return fmt.Errorf("field %s: %w", id, err)
	}
	return p.Set(ctx, id, value)
}

func (p *Panel) changed(id fields.ID) {
	v, _ := p.form.Get(id)
	p.sync.Changed(fields.NewChange(id, v))
}

func (p *Panel) setCredential(ctx context.Context, spec fields.Spec, value any) error {
	if err := p.form.Set(spec.ID, value); err != nil {
		return err
	}
	if err := p.store.SetCredential(ctx, spec.Credential, p.form.String(spec.ID)); err != nil {
		return p.report.fail(ctx, &OpError{
			Op:        "save credential",
			Kind:      ErrPersistenceFailed,
			MessageID: "msg.localSaveFailed",
			Text:      p.report.t("msg.localSaveFailed", nil),
			Err:       err,
		})
	}
	return nil
}

// setProvider refuses a provider whose credential is missing and restores
// the previous choice.
func (p *Panel) setProvider(ctx context.Context, value any) error {
	if err := p.form.Set(fields.TranslationAPI, value); err != nil {
		return err
	}
	base := settings.ProviderBase(p.form.String(fields.TranslationAPI))

	if needed, ok := base.Credential(); ok && !p.life.credentials().Has(needed) {
		p.mu.Lock()
		previous := p.previous
		p.mu.Unlock()
		if previous == "" || previous == base {
			previous = settings.ProviderGoogleDictionary
		}
		_ = p.form.Set(fields.TranslationAPI, string(previous))

		e := &OpError{
			Op:        "select provider",
			Kind:      ErrMissingCredential,
			MessageID: "msg.apiKeyRequired",
			Text:      p.report.t("msg.apiKeyRequired", map[string]string{"api": string(base)}),
		}
		p.report.log(e)
		p.report.notice(ctx, indicator.LevelWarning, e.Text)
		return e
	}

	p.mu.Lock()
	p.previous = base
	p.mu.Unlock()

	if !base.SupportsStreaming() && p.form.Bool(fields.OpenRouterStreaming) {
		_ = p.form.Set(fields.OpenRouterStreaming, false)
		p.changed(fields.OpenRouterStreaming)
	}
	p.changed(fields.TranslationAPI)
	return nil
}

func (p *Panel) setInternational(ctx context.Context, value any) error {
	if err := p.form.Set(fields.International, value); err != nil {
		return err
	}
	enabled := p.form.Bool(fields.International)
	if err := p.store.SetInternational(ctx, enabled); err != nil {
		p.report.fail(ctx, &OpError{
			Op:        "save international flag",
			Kind:      ErrPersistenceFailed,
			MessageID: "msg.localSaveFailed",
			Text:      p.report.t("msg.localSaveFailed", nil),
			Err:       err,
		})
	}

	if enabled && settings.Backend(p.form.String(fields.ASRBackend)) == settings.BackendDashScope {
		_ = p.form.Set(fields.ASRBackend, string(settings.BackendQwen))
		p.report.notice(ctx, indicator.LevelInfo, p.report.t("msg.backendSwitchedToQwen", nil))
		p.changed(fields.ASRBackend)
	}
	p.changed(fields.International)
	return nil
}

// ResetDefaults restores the default configuration, keeping credentials and
// the international flag, and saves it at once. A running service restarts.
func (p *Panel) ResetDefaults(ctx context.Context) error {
	cfg := settings.Default()
	cfg.ASR.UseInternationalEndpoint = p.form.Bool(fields.International)
	cfg, _ = settings.Coerce(cfg)
	if err := assemble.Populate(p.form, cfg); err != nil {
		return err
	}

	p.mu.Lock()
	p.previous = cfg.Translation.Provider.Base
	p.mu.Unlock()

	if err := p.sync.flush(ctx, fields.ReloadRestart, false); err != nil {
		return p.report.fail(ctx, &OpError{
			Op:        "reset",
			Kind:      ErrSyncFailed,
			MessageID: "msg.restoreDefaultsFailed",
			Text:      p.report.t("msg.restoreDefaultsFailed", nil),
			Err:       err,
		})
	}
	p.report.notice(ctx, indicator.LevelSuccess, p.report.t("msg.defaultsRestored", nil))
	return nil
}

// SaveNow saves immediately and reports success to the user.
func (p *Panel) SaveNow(ctx context.Context) error {
	return p.sync.SaveNow(ctx)
}

// SetLanguage switches the UI locale and persists the choice.
func (p *Panel) SetLanguage(ctx context.Context, pref string) (string, error) {
	locale := p.catalog.SetLocale(pref)
	if err := p.store.SetLanguage(ctx, locale); err != nil {
		return locale, p.report.fail(ctx, &OpError{
			Op:        "save ui language",
			Kind:      ErrPersistenceFailed,
			MessageID: "msg.localSaveFailed",
			Text:      p.report.t("msg.localSaveFailed", nil),
			Err:       err,
		})
	}
	p.report.notice(ctx, indicator.LevelInfo, p.report.t("msg.languageChanged", map[string]string{"lang": locale}))
	return locale, nil
}

// Start runs the gated service start.
func (p *Panel) Start(ctx context.Context) error {
	return p.life.Start(ctx)
}

// Stop stops the service.
func (p *Panel) Stop(ctx context.Context) error {
	return p.life.Stop(ctx)
}

// Restart restarts the service on a best-effort basis.
func (p *Panel) Restart(ctx context.Context) error {
	return p.life.Restart(ctx)
}

// Configuration assembles the current form state.
func (p *Panel) Configuration() settings.Configuration {
	return assemble.Assemble(p.form)
}

// Credentials returns the working credential copies.
func (p *Panel) Credentials() settings.CredentialSet {
	return p.life.credentials()
}

// Fields returns every non-secret field value.
func (p *Panel) Fields() map[fields.ID]any {
	return p.form.Snapshot()
}

// Controls exposes the start/stop control state.
func (p *Panel) Controls() *Controls {
	return p.controls
}

// Sync exposes the save-cycle controller.
func (p *Panel) Sync() *Sync {
	return p.sync
}

// Catalog returns the active string catalog.
func (p *Panel) Catalog() *i18n.Catalog {
	return p.catalog
}

// LastSaved returns when the configuration was last written locally.
func (p *Panel) LastSaved(ctx context.Context) (time.Time, bool) {
	snap, ok, err := p.store.LoadConfig(ctx)
	if err != nil || !ok || snap.SavedAt.IsZero() {
		return time.Time{}, false
	}
	return snap.SavedAt, true
}

// Close saves any pending change and waits for the in-flight cycle.
func (p *Panel) Close(ctx context.Context) error {
	return p.sync.Flush(ctx)
}

func (p *Panel) requestRefresh() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
