package settings

import (
	"encoding/json"
	"strings"
)

// ProviderBase identifies a translation provider.
type ProviderBase string

const (
	ProviderQwenMT           ProviderBase = "qwen_mt"
	ProviderDeepL            ProviderBase = "deepl"
	ProviderGoogleDictionary ProviderBase = "google_dictionary"
	ProviderGoogleWeb        ProviderBase = "google_web"
	ProviderOpenRouter       ProviderBase = "openrouter"
)

// Providers lists every selectable translation provider.
var Providers = []ProviderBase{
	ProviderQwenMT,
	ProviderDeepL,
	ProviderGoogleDictionary,
	ProviderGoogleWeb,
	ProviderOpenRouter,
}

const streamingSuffix = "_streaming"

// Known reports whether the base is a supported provider.
func (b ProviderBase) Known() bool {
	for _, known := range Providers {
		if b == known {
			return true
		}
	}
	return false
}

// Credential returns the credential a provider needs, if any.
func (b ProviderBase) Credential() (Provider, bool) {
	switch b {
	case ProviderDeepL:
		return ProviderKeyDeepL, true
	case ProviderOpenRouter:
		return ProviderKeyOpenRouter, true
	default:
		return "", false
	}
}

// SupportsStreaming reports whether the provider has a streaming mode.
func (b ProviderBase) SupportsStreaming() bool {
	return b == ProviderOpenRouter
}

// ProviderChoice is a translation provider plus its streaming flag.
//
// On the wire it is a single identifier such as "openrouter_streaming".
type ProviderChoice struct {
	Base      ProviderBase
	Streaming bool
}

// Encode returns the wire identifier.
func (p ProviderChoice) Encode() string {
	if p.Streaming {
		return string(p.Base) + streamingSuffix
	}
	return string(p.Base)
}

// DecodeProvider parses a wire identifier. It is the inverse of Encode.
func DecodeProvider(raw string) ProviderChoice {
	raw = strings.TrimSpace(raw)
	if base, ok := strings.CutSuffix(raw, streamingSuffix); ok && base != "" {
		return ProviderChoice{Base: ProviderBase(base), Streaming: true}
	}
	return ProviderChoice{Base: ProviderBase(raw)}
}

// PartialResults reports whether the service should translate interim
// recognition results for this choice.
func (p ProviderChoice) PartialResults() bool {
	return p.Streaming && p.Base.SupportsStreaming()
}

func (p ProviderChoice) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Encode())
}

func (p *ProviderChoice) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = DecodeProvider(raw)
	return nil
}
