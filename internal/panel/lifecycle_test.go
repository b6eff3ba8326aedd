package panel

import (
	"context"
	"errors"
	"testing"

	"github.com/rbright/yakutan/internal/fields"
	"github.com/rbright/yakutan/internal/fsm"
	"github.com/rbright/yakutan/internal/indicator"
	"github.com/rbright/yakutan/internal/remote"
	"github.com/rbright/yakutan/internal/settings"
	"github.com/stretchr/testify/require"
)

func TestStartRequiresDashScopeCredential(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)

	err := h.panel.Start(context.Background())
	require.ErrorIs(t, err, ErrMissingCredential)
	require.Zero(t, h.service.checkCalls.Load())
	require.Zero(t, h.service.startCalls.Load())
	require.Equal(t, fsm.ControlStopped, h.panel.Controls().State())
	require.Equal(t, h.catalog.T("msg.dashscopeRequired", nil), h.notice(t).Text)
}

func TestStartRejectsInvalidCredentialFormat(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	ctx := context.Background()
	require.NoError(t, h.panel.Set(ctx, fields.DashScopeKey, "not-a-key"))
	h.service.check = remote.CredentialCheck{Valid: false, MessageID: "msg.invalidKeyFormat", Message: "bad format"}

	err := h.panel.Start(ctx)
	require.ErrorIs(t, err, ErrInvalidCredentialFormat)
	require.Zero(t, h.service.startCalls.Load())
	require.Zero(t, h.service.setCalls.Load())

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, "msg.invalidKeyFormat", opErr.MessageID)
	require.Equal(t,
		h.catalog.T("msg.dashscopeValidationFailed", nil)+h.catalog.T("msg.invalidKeyFormat", nil),
		h.notice(t).Text,
	)
	require.Equal(t, fsm.ControlStopped, h.panel.Controls().State())
}

func TestStartUnknownCheckMessageFallsBackToServiceText(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	ctx := context.Background()
	require.NoError(t, h.panel.Set(ctx, fields.DashScopeKey, "sk-x"))
	h.service.check = remote.CredentialCheck{Valid: false, MessageID: "msg.somethingNew", Message: "Key revoked"}

	require.ErrorIs(t, h.panel.Start(ctx), ErrInvalidCredentialFormat)
	require.Equal(t, h.catalog.T("msg.dashscopeValidationFailed", nil)+"Key revoked", h.notice(t).Text)
}

func TestStartSubstitutesProviderWithoutCredential(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	stored := settings.Default()
	stored.Translation.Provider = settings.ProviderChoice{Base: settings.ProviderDeepL}
	require.NoError(t, h.store.SaveConfig(ctx, stored))
	require.NoError(t, h.store.SetCredential(ctx, settings.ProviderKeyDashScope, "sk-valid"))
	h.load(t)

	var remoteProvider settings.ProviderBase
	h.service.onSetConfig = func(cfg settings.Configuration) {
		remoteProvider = cfg.Translation.Provider.Base
	}

	require.NoError(t, h.panel.Start(ctx))
	require.Equal(t, int32(1), h.service.startCalls.Load())
	require.Equal(t, settings.ProviderGoogleDictionary, remoteProvider)

	snap, ok, err := h.store.LoadConfig(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, settings.ProviderGoogleDictionary, snap.Config.Translation.Provider.Base)

	n := h.notice(t)
	require.Equal(t, indicator.LevelWarning, n.Level)
	require.Equal(t, h.catalog.T("msg.autoSwitchToGoogle", nil)+" "+h.catalog.T("msg.serviceStartSuccess", nil), n.Text)
	require.Empty(t, h.panel.life.PendingWarning())
	require.Equal(t, fsm.ControlRunning, h.panel.Controls().State())

	// The substitute becomes the provider a later guard reverts to.
	require.Error(t, h.panel.Set(ctx, fields.TranslationAPI, "openrouter"))
	require.Equal(t, "google_dictionary", h.panel.Fields()[fields.TranslationAPI])
}

func TestStartKeepsProviderWhenTranslationDisabled(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	stored := settings.Default()
	stored.Translation.Enabled = false
	stored.Translation.Provider = settings.ProviderChoice{Base: settings.ProviderOpenRouter}
	require.NoError(t, h.store.SaveConfig(ctx, stored))
	require.NoError(t, h.store.SetCredential(ctx, settings.ProviderKeyDashScope, "sk-valid"))
	h.load(t)

	require.NoError(t, h.panel.Start(ctx))
	require.Equal(t, settings.ProviderOpenRouter, h.service.lastConfig(t).Translation.Provider.Base)
	require.Equal(t, indicator.LevelSuccess, h.notice(t).Level)
}

func TestStartRequiresSonioxCredentialForSonioxBackend(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	ctx := context.Background()
	require.NoError(t, h.panel.Set(ctx, fields.DashScopeKey, "sk-valid"))
	require.NoError(t, h.panel.Set(ctx, fields.ASRBackend, "soniox"))
	h.waitIdle(t)
	saves := h.service.setCalls.Load()

	err := h.panel.Start(ctx)
	require.ErrorIs(t, err, ErrMissingCredential)
	require.Equal(t, saves, h.service.setCalls.Load())
	require.Zero(t, h.service.startCalls.Load())
	require.Equal(t, h.catalog.T("msg.sonioxKeyRequired", nil), h.notice(t).Text)

	require.NoError(t, h.panel.Set(ctx, fields.SonioxKey, "soniox-key"))
	require.NoError(t, h.panel.Start(ctx))
	require.Equal(t, int32(1), h.service.startCalls.Load())
}

func TestStartAbortsWhenConfigSyncFails(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	ctx := context.Background()
	require.NoError(t, h.panel.Set(ctx, fields.DashScopeKey, "sk-valid"))
	h.service.setResult = remote.Result{Success: false, MessageID: "msg.configUpdateFailed"}

	err := h.panel.Start(ctx)
	require.ErrorIs(t, err, ErrSyncFailed)
	require.Zero(t, h.service.startCalls.Load())
	require.Equal(t, h.catalog.T("msg.syncConfigFailed", nil), h.notice(t).Text)
	require.True(t, h.panel.Controls().State().StartEnabled())
}

func TestStartSendsFullCredentialSet(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	ctx := context.Background()
	require.NoError(t, h.panel.Set(ctx, fields.DashScopeKey, " sk-valid "))
	require.NoError(t, h.panel.Set(ctx, fields.DeepLKey, "deepl-key"))

	require.NoError(t, h.panel.Start(ctx))

	h.service.mu.Lock()
	keys := h.service.startedWith
	h.service.mu.Unlock()
	require.Equal(t, "sk-valid", keys.Get(settings.ProviderKeyDashScope))
	require.Equal(t, "deepl-key", keys.Get(settings.ProviderKeyDeepL))
	require.False(t, keys.Has(settings.ProviderKeyOpenRouter))
	require.Len(t, h.panel.wake, 1, "status refresh scheduled")
}

func TestStartReportsRemoteFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	ctx := context.Background()
	require.NoError(t, h.panel.Set(ctx, fields.DashScopeKey, "sk-valid"))
	h.service.startResult = remote.Result{Success: false, MessageID: "msg.startFailed", Message: "failed"}

	err := h.panel.Start(ctx)
	require.ErrorIs(t, err, ErrRemoteOperationFailed)
	require.Equal(t, h.catalog.T("msg.serviceStartFailed", nil)+h.catalog.T("msg.startFailed", nil), h.notice(t).Text)
	require.Equal(t, fsm.ControlStopped, h.panel.Controls().State())
}

func TestStartUnreachableService(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	ctx := context.Background()
	require.NoError(t, h.panel.Set(ctx, fields.DashScopeKey, "sk-valid"))
	h.service.checkErr = errors.Join(remote.ErrUnavailable, errors.New("refused"))

	err := h.panel.Start(ctx)
	require.ErrorIs(t, err, ErrNetworkUnavailable)
	require.Zero(t, h.service.startCalls.Load())
}

func TestStartDisabledWhileRunning(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	h.panel.Controls().Observe(true)

	err := h.panel.Start(context.Background())
	require.ErrorIs(t, err, ErrControlDisabled)
	require.Zero(t, h.service.checkCalls.Load())
}

func TestStopRefreshesAndReports(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	ctx := context.Background()

	require.ErrorIs(t, h.panel.Stop(ctx), ErrControlDisabled)

	h.panel.Controls().Observe(true)
	h.service.stopResult = remote.Result{Success: false, MessageID: "msg.stopFailed", Message: "failed"}
	err := h.panel.Stop(ctx)
	require.ErrorIs(t, err, ErrRemoteOperationFailed)
	require.True(t, h.panel.Controls().State().StopEnabled(), "stop stays available for retry")
	require.Len(t, h.panel.wake, 1)
	<-h.panel.wake

	h.service.stopResult = remote.Result{Success: true, MessageID: "msg.serviceStopped"}
	require.NoError(t, h.panel.Stop(ctx))
	require.Equal(t, fsm.ControlStopped, h.panel.Controls().State())
	require.Equal(t, h.catalog.T("msg.serviceStopSuccess", nil), h.notice(t).Text)
	require.Len(t, h.panel.wake, 1)
}

func TestRestartFailureIsNotShown(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t)
	svc := &restartFailing{fakeService: h.service}
	h.panel.life.service = svc

	err := h.panel.Restart(context.Background())
	require.ErrorIs(t, err, ErrRemoteOperationFailed)
	_, shown := h.board.Current()
	require.False(t, shown)
}

type restartFailing struct {
	*fakeService
}

func (r *restartFailing) Restart(context.Context) (remote.Result, error) {
	r.restartCalls.Add(1)
	return remote.Result{Success: false, MessageID: "msg.noRestartNeeded"}, nil
}
