// Package settings defines the translator service configuration model shared
// by the control panel, the local store, and the service API.
package settings

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Backend identifies a speech recognition backend.
type Backend string

const (
	BackendQwen      Backend = "qwen"
	BackendDashScope Backend = "dashscope"
	BackendSoniox    Backend = "soniox"
)

// Backends lists every recognized recognition backend.
var Backends = []Backend{BackendQwen, BackendDashScope, BackendSoniox}

// Detector identifies a spoken-language detector.
type Detector string

const (
	DetectorCJKE     Detector = "cjke"
	DetectorFastText Detector = "fasttext"
	DetectorEnZh     Detector = "enzh"
)

// Detectors lists every recognized language detector.
var Detectors = []Detector{DetectorCJKE, DetectorFastText, DetectorEnZh}

// Configuration is the structured record synchronized between the panel,
// the local store, and the running service.
type Configuration struct {
	Translation      Translation      `json:"translation"`
	MicControl       MicControl       `json:"mic_control"`
	ASR              ASR              `json:"asr"`
	LanguageDetector LanguageDetector `json:"language_detector"`
}

// Translation controls translation output.
type Translation struct {
	Enabled                  bool           `json:"enable_translation"`
	SourceLanguage           string         `json:"source_language"`
	TargetLanguage           string         `json:"target_language"`
	FallbackLanguage         *string        `json:"fallback_language"`
	Provider                 ProviderChoice `json:"api_type"`
	ShowPartialResults       bool           `json:"show_partial_results"`
	ShowOriginalAndLangTag   bool           `json:"show_original_and_lang_tag"`
	EnableFurigana           bool           `json:"enable_furigana"`
	EnablePinyin             bool           `json:"enable_pinyin"`
	EnableReverseTranslation bool           `json:"enable_reverse_translation"`
}

// MicControl controls automatic microphone muting.
type MicControl struct {
	Enabled          bool    `json:"enable_mic_control"`
	MuteDelaySeconds float64 `json:"mute_delay_seconds"`
	DeviceIndex      *int    `json:"mic_device_index"`
}

// ASR controls speech recognition.
type ASR struct {
	Backend                  Backend `json:"preferred_backend"`
	EnableHotWords           bool    `json:"enable_hot_words"`
	EnableVAD                bool    `json:"enable_vad"`
	VADThreshold             float64 `json:"vad_threshold"`
	VADSilenceDurationMS     int     `json:"vad_silence_duration_ms"`
	KeepaliveIntervalSeconds int     `json:"keepalive_interval"`
	UseInternationalEndpoint bool    `json:"use_international_endpoint"`
}

// LanguageDetector selects the language detector.
type LanguageDetector struct {
	Type Detector `json:"type"`
}

// Default returns the configuration used when nothing has been stored yet.
func Default() Configuration {
	return Configuration{
		Translation: Translation{
			Enabled:                  true,
			SourceLanguage:           "auto",
			TargetLanguage:           "ja",
			FallbackLanguage:         Language("en"),
			Provider:                 ProviderChoice{Base: ProviderQwenMT},
			ShowPartialResults:       false,
			ShowOriginalAndLangTag:   true,
			EnableFurigana:           false,
			EnablePinyin:             false,
			EnableReverseTranslation: true,
		},
		MicControl: MicControl{
			Enabled:          true,
			MuteDelaySeconds: 0.2,
		},
		ASR: ASR{
			Backend:                  BackendQwen,
			EnableHotWords:           true,
			EnableVAD:                true,
			VADThreshold:             0.2,
			VADSilenceDurationMS:     800,
			KeepaliveIntervalSeconds: 30,
		},
		LanguageDetector: LanguageDetector{Type: DetectorCJKE},
	}
}

// Language returns a pointer to a trimmed language code, or nil when empty.
func Language(code string) *string {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return &code
}

// Coerce applies cross-field invariants and reports whether anything changed.
//
// The international endpoint does not serve the dashscope backend, so that
// combination is rewritten to qwen.
func Coerce(cfg Configuration) (Configuration, bool) {
	if cfg.ASR.UseInternationalEndpoint && cfg.ASR.Backend == BackendDashScope {
		cfg.ASR.Backend = BackendQwen
		return cfg, true
	}
	return cfg, false
}

// Validate checks value ranges and enumerations.
func Validate(cfg Configuration) error {
	if !validBackend(cfg.ASR.Backend) {
		return fmt.Errorf("asr.preferred_backend must be one of: qwen, dashscope, soniox")
	}
	if !validDetector(cfg.LanguageDetector.Type) {
		return fmt.Errorf("language_detector.type must be one of: cjke, fasttext, enzh")
	}
	if !cfg.Translation.Provider.Base.Known() {
		return fmt.Errorf("translation.api_type %q is not supported", cfg.Translation.Provider.Encode())
	}
	if cfg.ASR.VADThreshold < 0 || cfg.ASR.VADThreshold > 1 {
		return fmt.Errorf("asr.vad_threshold must be within [0, 1]")
	}
	if cfg.ASR.VADSilenceDurationMS < 0 {
		return fmt.Errorf("asr.vad_silence_duration_ms must be >= 0")
	}
	if cfg.ASR.KeepaliveIntervalSeconds < 0 {
		return fmt.Errorf("asr.keepalive_interval must be >= 0")
	}
	if cfg.MicControl.MuteDelaySeconds < 0 {
		return fmt.Errorf("mic_control.mute_delay_seconds must be >= 0")
	}
	if cfg.MicControl.DeviceIndex != nil && *cfg.MicControl.DeviceIndex < 0 {
		return fmt.Errorf("mic_control.mic_device_index must be >= 0")
	}
	return nil
}

func validBackend(b Backend) bool {
	for _, known := range Backends {
		if b == known {
			return true
		}
	}
	return false
}

func validDetector(d Detector) bool {
	for _, known := range Detectors {
		if d == known {
			return true
		}
	}
	return false
}

// Marshal renders the configuration as wire JSON.
func Marshal(cfg Configuration) ([]byte, error) {
	return json.Marshal(cfg)
}

// Unmarshal decodes wire JSON on top of the defaults so missing sections keep
// their default values.
func Unmarshal(data []byte) (Configuration, error) {
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("decode configuration: %w", err)
	}
	return cfg, nil
}
