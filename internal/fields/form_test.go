package fields

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFormZeroValues(t *testing.T) {
	f := NewForm()
	require.False(t, f.Bool(EnableTranslation))
	require.Equal(t, "", f.String(TargetLanguage))
	require.Zero(t, f.Float(VADThreshold))
	require.Zero(t, f.Int(KeepaliveInterval))
	require.Nil(t, f.OptionalInt(MicDevice))
}

func TestSetTypeChecks(t *testing.T) {
	tests := []struct {
		name    string
		id      ID
		value   any
		wantErr string
	}{
		{name: "bool ok", id: EnableVAD, value: true},
		{name: "bool wrong type", id: EnableVAD, value: "true", wantErr: "expected bool"},
		{name: "number from int", id: MuteDelay, value: 2},
		{name: "number out of range", id: VADThreshold, value: 1.2, wantErr: "within [0, 1]"},
		{name: "int ok", id: VADSilenceDuration, value: 800},
		{name: "int negative", id: KeepaliveInterval, value: -1, wantErr: "at least 0"},
		{name: "long keepalive", id: KeepaliveInterval, value: 7200},
		{name: "long silence", id: VADSilenceDuration, value: 120000},
		{name: "long mute delay", id: MuteDelay, value: 90.0},
		{name: "enum ok", id: ASRBackend, value: "soniox"},
		{name: "enum unknown", id: ASRBackend, value: "whisper", wantErr: "must be one of"},
		{name: "optional nil", id: MicDevice, value: nil},
		{name: "optional int", id: MicDevice, value: 3},
		{name: "optional negative", id: MicDevice, value: -1, wantErr: ">= 0"},
		{name: "unknown field", id: ID("nope"), value: 1, wantErr: "unknown field"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewForm().Set(tc.id, tc.value)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSetTextParsesByKind(t *testing.T) {
	f := NewForm()

	v, err := f.SetText(EnableTranslation, "on")
	require.NoError(t, err)
	require.Equal(t, true, v)

	_, err = f.SetText(VADThreshold, "0.35")
	require.NoError(t, err)
	require.InDelta(t, 0.35, f.Float(VADThreshold), 1e-9)

	_, err = f.SetText(MicDevice, "4")
	require.NoError(t, err)
	require.Equal(t, 4, *f.OptionalInt(MicDevice))

	_, err = f.SetText(MicDevice, "default")
	require.NoError(t, err)
	require.Nil(t, f.OptionalInt(MicDevice))

	_, err = f.SetText(TargetLanguage, "  zh ")
	require.NoError(t, err)
	require.Equal(t, "zh", f.String(TargetLanguage))

	_, err = f.SetText(KeepaliveInterval, "soon")
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected integer")

	_, err = f.SetText(EnableVAD, "maybe")
	require.Error(t, err)
}

func TestOptionalIntReturnsCopy(t *testing.T) {
	f := NewForm()
	require.NoError(t, f.Set(MicDevice, 2))

	got := f.OptionalInt(MicDevice)
	*got = 9
	require.Equal(t, 2, *f.OptionalInt(MicDevice))
}

func TestSnapshotOmitsSecrets(t *testing.T) {
	f := NewForm()
	require.NoError(t, f.Set(DashScopeKey, "sk-secret"))

	snap := f.Snapshot()
	require.NotContains(t, snap, DashScopeKey)
	require.Contains(t, snap, ASRBackend)
	require.Equal(t, "sk-secret", f.String(DashScopeKey))
}
