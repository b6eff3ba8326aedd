package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rbright/yakutan/internal/settings"
)

// mergeConfig overlays the sections present in body onto cur. Keys missing
// from a section keep their current values; unknown sections are ignored.
func mergeConfig(cur settings.Configuration, body []byte) (settings.Configuration, error) {
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(body, &patch); err != nil {
		return cur, fmt.Errorf("invalid payload: %w", err)
	}
	if len(patch) == 0 {
		return cur, errors.New("payload must contain at least one section")
	}

	next := clone(cur)
	targets := map[string]any{
		"translation":       &next.Translation,
		"mic_control":       &next.MicControl,
		"asr":               &next.ASR,
		"language_detector": &next.LanguageDetector,
	}
	for name, raw := range patch {
		target, ok := targets[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return cur, fmt.Errorf("decode %s: %w", name, err)
		}
	}

	if next.Translation.FallbackLanguage != nil {
		next.Translation.FallbackLanguage = settings.Language(*next.Translation.FallbackLanguage)
	}
	next, _ = settings.Coerce(next)
	if err := settings.Validate(next); err != nil {
		return cur, err
	}
	return next, nil
}

// clone copies cfg so decoding into the copy never writes through a shared
// pointer.
func clone(cfg settings.Configuration) settings.Configuration {
	out := cfg
	if cfg.Translation.FallbackLanguage != nil {
		v := *cfg.Translation.FallbackLanguage
		out.Translation.FallbackLanguage = &v
	}
	if cfg.MicControl.DeviceIndex != nil {
		v := *cfg.MicControl.DeviceIndex
		out.MicControl.DeviceIndex = &v
	}
	return out
}
