// Package assemble converts between panel field values and the Configuration.
package assemble

import (
	"errors"

	"github.com/rbright/yakutan/internal/fields"
	"github.com/rbright/yakutan/internal/settings"
)

// Reader is the read side of the field accessor.
type Reader interface {
	Bool(fields.ID) bool
	String(fields.ID) string
	Float(fields.ID) float64
	Int(fields.ID) int
	OptionalInt(fields.ID) *int
}

// Writer is the write side of the field accessor.
type Writer interface {
	Set(fields.ID, any) error
}

// Assemble builds the Configuration from current field values.
//
// It has no side effects and never fails. The provider enum and the streaming
// checkbox collapse into one ProviderChoice, a blank fallback language becomes
// nil, and the dashscope backend is replaced by qwen on the international
// endpoint.
func Assemble(r Reader) settings.Configuration {
	provider := settings.ProviderChoice{
		Base:      settings.ProviderBase(r.String(fields.TranslationAPI)),
		Streaming: r.Bool(fields.OpenRouterStreaming),
	}
	if !provider.Base.SupportsStreaming() {
		provider.Streaming = false
	}

	cfg := settings.Configuration{
		Translation: settings.Translation{
			Enabled:                  r.Bool(fields.EnableTranslation),
			SourceLanguage:           r.String(fields.SourceLanguage),
			TargetLanguage:           r.String(fields.TargetLanguage),
			FallbackLanguage:         settings.Language(r.String(fields.FallbackLanguage)),
			Provider:                 provider,
			ShowPartialResults:       r.Bool(fields.ShowPartialResults),
			ShowOriginalAndLangTag:   r.Bool(fields.ShowOriginalAndLangTag),
			EnableFurigana:           r.Bool(fields.EnableFurigana),
			EnablePinyin:             r.Bool(fields.EnablePinyin),
			EnableReverseTranslation: r.Bool(fields.EnableReverse),
		},
		MicControl: settings.MicControl{
			Enabled:          r.Bool(fields.EnableMicControl),
			MuteDelaySeconds: r.Float(fields.MuteDelay),
			DeviceIndex:      r.OptionalInt(fields.MicDevice),
		},
		ASR: settings.ASR{
			Backend:                  settings.Backend(r.String(fields.ASRBackend)),
			EnableHotWords:           r.Bool(fields.EnableHotWords),
			EnableVAD:                r.Bool(fields.EnableVAD),
			VADThreshold:             r.Float(fields.VADThreshold),
			VADSilenceDurationMS:     r.Int(fields.VADSilenceDuration),
			KeepaliveIntervalSeconds: r.Int(fields.KeepaliveInterval),
			UseInternationalEndpoint: r.Bool(fields.International),
		},
		LanguageDetector: settings.LanguageDetector{
			Type: settings.Detector(r.String(fields.LanguageDetector)),
		},
	}

	cfg, _ = settings.Coerce(cfg)
	return cfg
}

// Populate writes every Configuration value back into the fields.
//
// A value the registry rejects (an unknown provider left over from an older
// store, for example) is replaced by that field's default, and every
// rejection is reported together.
func Populate(w Writer, cfg settings.Configuration) error {
	defaults := fieldValues(settings.Default())

	var errs []error
	for i, v := range fieldValues(cfg) {
		err := w.Set(v.id, v.value)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if derr := w.Set(v.id, defaults[i].value); derr != nil {
			errs = append(errs, derr)
		}
	}
	return errors.Join(errs...)
}

type fieldValue struct {
	id    fields.ID
	value any
}

func fieldValues(cfg settings.Configuration) []fieldValue {
	fallback := ""
	if cfg.Translation.FallbackLanguage != nil {
		fallback = *cfg.Translation.FallbackLanguage
	}

	var device any
	if cfg.MicControl.DeviceIndex != nil {
		device = *cfg.MicControl.DeviceIndex
	}

	return []fieldValue{
		{fields.EnableTranslation, cfg.Translation.Enabled},
		{fields.SourceLanguage, cfg.Translation.SourceLanguage},
		{fields.TargetLanguage, cfg.Translation.TargetLanguage},
		{fields.FallbackLanguage, fallback},
		{fields.TranslationAPI, string(cfg.Translation.Provider.Base)},
		{fields.OpenRouterStreaming, cfg.Translation.Provider.Streaming},
		{fields.ShowPartialResults, cfg.Translation.ShowPartialResults},
		{fields.ShowOriginalAndLangTag, cfg.Translation.ShowOriginalAndLangTag},
		{fields.EnableFurigana, cfg.Translation.EnableFurigana},
		{fields.EnablePinyin, cfg.Translation.EnablePinyin},
		{fields.EnableReverse, cfg.Translation.EnableReverseTranslation},
		{fields.EnableMicControl, cfg.MicControl.Enabled},
		{fields.MuteDelay, cfg.MicControl.MuteDelaySeconds},
		{fields.MicDevice, device},
		{fields.ASRBackend, string(cfg.ASR.Backend)},
		{fields.EnableHotWords, cfg.ASR.EnableHotWords},
		{fields.EnableVAD, cfg.ASR.EnableVAD},
		{fields.VADThreshold, cfg.ASR.VADThreshold},
		{fields.VADSilenceDuration, cfg.ASR.VADSilenceDurationMS},
		{fields.KeepaliveInterval, cfg.ASR.KeepaliveIntervalSeconds},
		{fields.International, cfg.ASR.UseInternationalEndpoint},
		{fields.LanguageDetector, string(cfg.LanguageDetector.Type)},
	}
}
