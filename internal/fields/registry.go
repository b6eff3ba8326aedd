// Package fields is the typed field registry behind the control panel.
//
// Every field is registered once with its kind and its reload tag, so a
// change event always carries whether the running service must restart.
package fields

import (
	"sort"

	"github.com/rbright/yakutan/internal/settings"
)

// ID names one panel field.
type ID string

const (
	EnableTranslation      ID = "enable_translation"
	SourceLanguage         ID = "source_language"
	TargetLanguage         ID = "target_language"
	FallbackLanguage       ID = "fallback_language"
	TranslationAPI         ID = "translation_api_type"
	OpenRouterStreaming    ID = "openrouter_streaming"
	ShowPartialResults     ID = "show_partial_results"
	ShowOriginalAndLangTag ID = "show_original_and_lang_tag"
	EnableFurigana         ID = "enable_furigana"
	EnablePinyin           ID = "enable_pinyin"
	EnableReverse          ID = "enable_reverse_translation"

	EnableMicControl ID = "enable_mic_control"
	MuteDelay        ID = "mute_delay"
	MicDevice        ID = "mic_device"

	ASRBackend         ID = "asr_backend"
	EnableHotWords     ID = "enable_hot_words"
	EnableVAD          ID = "enable_vad"
	VADThreshold       ID = "vad_threshold"
	VADSilenceDuration ID = "vad_silence_duration"
	KeepaliveInterval  ID = "keepalive_interval"
	International      ID = "use_international_endpoint"

	LanguageDetector ID = "language_detector"

	DashScopeKey  ID = "dashscope_api_key"
	DeepLKey      ID = "deepl_api_key"
	OpenRouterKey ID = "openrouter_api_key"
	SonioxKey     ID = "soniox_api_key"
)

// Kind is the value type a field holds.
type Kind int

const (
	KindBool Kind = iota + 1
	KindString
	KindNumber
	KindInt
	KindEnum
	KindOptionalInt
	KindSecret
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInt:
		return "int"
	case KindEnum:
		return "enum"
	case KindOptionalInt:
		return "optional int"
	case KindSecret:
		return "secret"
	default:
		return "unknown"
	}
}

// Reload says how a running service picks up a field change.
type Reload int

const (
	// ReloadUnknown carries no tag information and is treated as hot.
	ReloadUnknown Reload = iota
	ReloadHot
	ReloadRestart
)

func (r Reload) String() string {
	switch r {
	case ReloadHot:
		return "hot"
	case ReloadRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// Merge combines two tags from coalesced changes; restart dominates.
func (r Reload) Merge(other Reload) Reload {
	if other > r {
		return other
	}
	return r
}

// Spec describes one registered field.
type Spec struct {
	ID      ID
	Kind    Kind
	Reload  Reload
	Options []string
	// Min and Max bound number and int fields; nil leaves that side open.
	Min *float64
	Max *float64

	// Credential is set for secret fields; they never enter the Configuration.
	Credential settings.Provider
}

var registry = map[ID]Spec{}

func register(spec Spec) {
	registry[spec.ID] = spec
}

func init() {
	hot := func(id ID, kind Kind) Spec { return Spec{ID: id, Kind: kind, Reload: ReloadHot} }
	restart := func(id ID, kind Kind) Spec { return Spec{ID: id, Kind: kind, Reload: ReloadRestart} }

	register(hot(EnableTranslation, KindBool))
	register(hot(SourceLanguage, KindString))
	register(hot(TargetLanguage, KindString))
	register(hot(FallbackLanguage, KindString))
	register(Spec{ID: TranslationAPI, Kind: KindEnum, Reload: ReloadHot, Options: providerOptions()})
	register(hot(OpenRouterStreaming, KindBool))
	register(hot(ShowPartialResults, KindBool))
	register(hot(ShowOriginalAndLangTag, KindBool))
	register(hot(EnableFurigana, KindBool))
	register(hot(EnablePinyin, KindBool))
	register(hot(EnableReverse, KindBool))

	register(restart(EnableMicControl, KindBool))
	register(Spec{ID: MuteDelay, Kind: KindNumber, Reload: ReloadHot, Min: bound(0)})
	register(restart(MicDevice, KindOptionalInt))

	register(Spec{ID: ASRBackend, Kind: KindEnum, Reload: ReloadRestart, Options: backendOptions()})
	register(restart(EnableHotWords, KindBool))
	register(hot(EnableVAD, KindBool))
	register(Spec{ID: VADThreshold, Kind: KindNumber, Reload: ReloadHot, Min: bound(0), Max: bound(1)})
	register(Spec{ID: VADSilenceDuration, Kind: KindInt, Reload: ReloadHot, Min: bound(0)})
	register(Spec{ID: KeepaliveInterval, Kind: KindInt, Reload: ReloadRestart, Min: bound(0)})
	register(restart(International, KindBool))

	register(Spec{ID: LanguageDetector, Kind: KindEnum, Reload: ReloadRestart, Options: detectorOptions()})

	register(Spec{ID: DashScopeKey, Kind: KindSecret, Credential: settings.ProviderKeyDashScope})
	register(Spec{ID: DeepLKey, Kind: KindSecret, Credential: settings.ProviderKeyDeepL})
	register(Spec{ID: OpenRouterKey, Kind: KindSecret, Credential: settings.ProviderKeyOpenRouter})
	register(Spec{ID: SonioxKey, Kind: KindSecret, Credential: settings.ProviderKeySoniox})
}

func bound(v float64) *float64 { return &v }

func providerOptions() []string {
	out := make([]string, 0, len(settings.Providers))
	for _, p := range settings.Providers {
		out = append(out, string(p))
	}
	return out
}

func backendOptions() []string {
	out := make([]string, 0, len(settings.Backends))
	for _, b := range settings.Backends {
		out = append(out, string(b))
	}
	return out
}

func detectorOptions() []string {
	out := make([]string, 0, len(settings.Detectors))
	for _, d := range settings.Detectors {
		out = append(out, string(d))
	}
	return out
}

// Lookup returns the registered spec for id.
func Lookup(id ID) (Spec, bool) {
	spec, ok := registry[id]
	return spec, ok
}

// All returns every registered spec sorted by id.
func All() []Spec {
	out := make([]Spec, 0, len(registry))
	for _, spec := range registry {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CredentialField returns the secret field that holds p.
func CredentialField(p settings.Provider) (ID, bool) {
	for id, spec := range registry {
		if spec.Kind == KindSecret && spec.Credential == p {
			return id, true
		}
	}
	return "", false
}

// Change is one field-change event.
type Change struct {
	Field  ID
	Value  any
	Reload Reload
}

// NewChange builds a change event tagged from the registry.
func NewChange(id ID, value any) Change {
	spec, _ := Lookup(id)
	return Change{Field: id, Value: value, Reload: spec.Reload}
}
