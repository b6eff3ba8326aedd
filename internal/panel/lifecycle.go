package panel

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/yakutan/internal/assemble"
	"github.com/rbright/yakutan/internal/fields"
	"github.com/rbright/yakutan/internal/fsm"
	"github.com/rbright/yakutan/internal/indicator"
	"github.com/rbright/yakutan/internal/localstore"
	"github.com/rbright/yakutan/internal/settings"
)

// Lifecycle gates start, stop, and restart of the service.
type Lifecycle struct {
	form     *fields.Form
	store    *localstore.Store
	service  Service
	report   *reporter
	controls *Controls
	logger   *slog.Logger

	// substituted is called after the provider was forced to a
	// credential-free default.
	substituted func(settings.ProviderBase)
	// refresh asks the status poller for an early tick.
	refresh func()

	mu      sync.Mutex
	warning string
}

// PendingWarning returns the outstanding substitution warning, if any.
func (l *Lifecycle) PendingWarning() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warning
}

func (l *Lifecycle) setWarning(text string) {
	l.mu.Lock()
	l.warning = text
	l.mu.Unlock()
}

func (l *Lifecycle) takeWarning() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	text := l.warning
	l.warning = ""
	return text
}

// credentials reads the working copies held in the form.
func (l *Lifecycle) credentials() settings.CredentialSet {
	var set settings.CredentialSet
	for _, p := range settings.CredentialProviders {
		if id, ok := fields.CredentialField(p); ok {
			set = set.With(p, strings.TrimSpace(l.form.String(id)))
		}
	}
	return set
}

// Start runs the start gates in order and then starts the service.
//
// Each failed gate returns an *OpError and leaves the remote service
// untouched. A translation provider that lacks its credential is replaced
// with google_dictionary, persisted locally, and reported as a warning.
func (l *Lifecycle) Start(ctx context.Context) error {
	if err := l.controls.apply(fsm.ControlStartRequested); err != nil {
		return &OpError{Op: "start", Kind: ErrControlDisabled, Text: l.report.t("msg.serviceAlreadyRunning", nil), Err: err}
	}
	l.setWarning("")

	started := false
	defer func() {
		event := fsm.ControlStartFailed
		if started {
			event = fsm.ControlStartSucceeded
		}
		_ = l.controls.apply(event)
		l.setWarning("")
	}()

	creds := l.credentials()

	dashscope := creds.Get(settings.ProviderKeyDashScope)
	if dashscope == "" {
		return l.report.fail(ctx, &OpError{
			Op:        "start",
			Kind:      ErrMissingCredential,
			MessageID: "msg.dashscopeRequired",
			Text:      l.report.t("msg.dashscopeRequired", nil),
		})
	}

	check, err := l.service.CheckCredential(ctx, dashscope)
	if err != nil {
		return l.report.fail(ctx, &OpError{
			Op:        "start",
			Kind:      transportKind(err, ErrRemoteOperationFailed),
			MessageID: "msg.startServiceFailed",
			Text:      l.report.t("msg.startServiceFailed", nil),
			Err:       err,
		})
	}
	if !check.Valid {
		return l.report.fail(ctx, &OpError{
			Op:        "start",
			Kind:      ErrInvalidCredentialFormat,
			MessageID: check.MessageID,
			Message:   check.Message,
			Text:      l.report.t("msg.dashscopeValidationFailed", nil) + l.report.localize(check.MessageID, check.Message),
		})
	}

	if l.form.Bool(fields.EnableTranslation) {
		l.substituteProvider(ctx, creds)
	}

	if settings.Backend(l.form.String(fields.ASRBackend)) == settings.BackendSoniox && !creds.Has(settings.ProviderKeySoniox) {
		return l.report.fail(ctx, &OpError{
			Op:        "start",
			Kind:      ErrMissingCredential,
			MessageID: "msg.sonioxKeyRequired",
			Text:      l.report.t("msg.sonioxKeyRequired", nil),
		})
	}

	res, err := l.service.SetConfig(ctx, assemble.Assemble(l.form))
	if err != nil || !res.Success {
		return l.report.fail(ctx, &OpError{
			Op:        "start",
			Kind:      ErrSyncFailed,
			MessageID: res.MessageID,
			Message:   res.Message,
			Text:      l.report.t("msg.syncConfigFailed", nil),
			Err:       err,
		})
	}

	res, err = l.service.Start(ctx, creds)
	if err != nil {
		return l.report.fail(ctx, &OpError{
			Op:        "start",
			Kind:      transportKind(err, ErrRemoteOperationFailed),
			MessageID: "msg.startServiceFailed",
			Text:      l.report.t("msg.startServiceFailed", nil),
			Err:       err,
		})
	}
	if !res.Success {
		return l.report.fail(ctx, &OpError{
			Op:        "start",
			Kind:      ErrRemoteOperationFailed,
			MessageID: res.MessageID,
			Message:   res.Message,
			Text:      l.report.t("msg.serviceStartFailed", nil) + l.report.localize(res.MessageID, res.Message),
		})
	}

	started = true
	success := l.report.t("msg.serviceStartSuccess", nil)
	if warning := l.takeWarning(); warning != "" {
		l.report.notice(ctx, indicator.LevelWarning, warning+" "+success)
	} else {
		l.report.notice(ctx, indicator.LevelSuccess, success)
	}
	l.logger.Info("service started", "backend", l.form.String(fields.ASRBackend))
	l.requestRefresh()
	return nil
}

// substituteProvider swaps a provider whose credential is missing for
// google_dictionary and writes the result to the local store right away.
func (l *Lifecycle) substituteProvider(ctx context.Context, creds settings.CredentialSet) {
	base := settings.ProviderBase(l.form.String(fields.TranslationAPI))
	needed, ok := base.Credential()
	if !ok || creds.Has(needed) {
		return
	}

	_ = l.form.Set(fields.TranslationAPI, string(settings.ProviderGoogleDictionary))
	_ = l.form.Set(fields.OpenRouterStreaming, false)
	if l.substituted != nil {
		l.substituted(settings.ProviderGoogleDictionary)
	}

	if err := l.store.SaveConfig(ctx, assemble.Assemble(l.form)); err != nil {
		l.report.fail(ctx, &OpError{
			Op:        "start",
			Kind:      ErrPersistenceFailed,
			MessageID: "msg.localSaveFailed",
			Text:      l.report.t("msg.localSaveFailed", nil),
			Err:       err,
		})
	}

	warning := l.report.t("msg.autoSwitchToGoogle", nil)
	l.setWarning(warning)
	l.report.notice(ctx, indicator.LevelWarning, warning)
	l.logger.Warn("translation provider substituted", "from", base, "to", settings.ProviderGoogleDictionary)
}

// Stop stops the service. The status is refreshed whatever the outcome.
func (l *Lifecycle) Stop(ctx context.Context) error {
	if err := l.controls.apply(fsm.ControlStopRequested); err != nil {
		return &OpError{Op: "stop", Kind: ErrControlDisabled, Text: l.report.t("msg.serviceNotRunning", nil), Err: err}
	}
	defer l.requestRefresh()

	res, err := l.service.Stop(ctx)
	if err != nil {
		_ = l.controls.apply(fsm.ControlStopFailed)
		return l.report.fail(ctx, &OpError{
			Op:        "stop",
			Kind:      transportKind(err, ErrRemoteOperationFailed),
			MessageID: "msg.stopServiceFailed",
			Text:      l.report.t("msg.stopServiceFailed", nil),
			Err:       err,
		})
	}
	if !res.Success {
		_ = l.controls.apply(fsm.ControlStopFailed)
		return l.report.fail(ctx, &OpError{
			Op:        "stop",
			Kind:      ErrRemoteOperationFailed,
			MessageID: res.MessageID,
			Message:   res.Message,
			Text:      l.report.t("msg.serviceStopFailed", nil) + l.report.localize(res.MessageID, res.Message),
		})
	}

	_ = l.controls.apply(fsm.ControlStopSucceeded)
	l.report.notice(ctx, indicator.LevelSuccess, l.report.t("msg.serviceStopSuccess", nil))
	l.logger.Info("service stopped")
	return nil
}

// Restart restarts the service. Failures are logged, never shown.
func (l *Lifecycle) Restart(ctx context.Context) error {
	res, err := l.service.Restart(ctx)
	if err != nil {
		e := &OpError{Op: "restart", Kind: transportKind(err, ErrRemoteOperationFailed), Err: err}
		l.report.log(e)
		return e
	}
	if !res.Success {
		e := &OpError{
			Op:        "restart",
			Kind:      ErrRemoteOperationFailed,
			MessageID: res.MessageID,
			Message:   res.Message,
			Text:      l.report.localize(res.MessageID, res.Message),
		}
		l.report.log(e)
		return e
	}
	l.logger.Info("service restarted", "message_id", res.MessageID)
	l.requestRefresh()
	return nil
}

func (l *Lifecycle) requestRefresh() {
	if l.refresh != nil {
		l.refresh()
	}
}
