package settings

import "strings"

// Provider names a credential owner.
type Provider string

const (
	ProviderKeyDashScope  Provider = "dashscope"
	ProviderKeyDeepL      Provider = "deepl"
	ProviderKeyOpenRouter Provider = "openrouter"
	ProviderKeySoniox     Provider = "soniox"
)

// CredentialProviders lists every provider that takes a credential.
var CredentialProviders = []Provider{
	ProviderKeyDashScope,
	ProviderKeyDeepL,
	ProviderKeyOpenRouter,
	ProviderKeySoniox,
}

// EnvVar is the environment variable the service reads the credential from.
func (p Provider) EnvVar() string {
	return strings.ToUpper(string(p)) + "_API_KEY"
}

// CredentialSet holds one secret per provider. Empty means absent.
type CredentialSet struct {
	DashScope  string `json:"dashscope,omitempty"`
	DeepL      string `json:"deepl,omitempty"`
	OpenRouter string `json:"openrouter,omitempty"`
	Soniox     string `json:"soniox,omitempty"`
}

// Get returns the trimmed credential for p.
func (c CredentialSet) Get(p Provider) string {
	switch p {
	case ProviderKeyDashScope:
		return strings.TrimSpace(c.DashScope)
	case ProviderKeyDeepL:
		return strings.TrimSpace(c.DeepL)
	case ProviderKeyOpenRouter:
		return strings.TrimSpace(c.OpenRouter)
	case ProviderKeySoniox:
		return strings.TrimSpace(c.Soniox)
	default:
		return ""
	}
}

// With returns a copy of c with the credential for p replaced.
func (c CredentialSet) With(p Provider, value string) CredentialSet {
	switch p {
	case ProviderKeyDashScope:
		c.DashScope = value
	case ProviderKeyDeepL:
		c.DeepL = value
	case ProviderKeyOpenRouter:
		c.OpenRouter = value
	case ProviderKeySoniox:
		c.Soniox = value
	}
	return c
}

// Has reports whether a non-blank credential exists for p.
func (c CredentialSet) Has(p Provider) bool {
	return c.Get(p) != ""
}

// Trimmed returns the set with surrounding whitespace removed.
func (c CredentialSet) Trimmed() CredentialSet {
	out := CredentialSet{}
	for _, p := range CredentialProviders {
		out = out.With(p, c.Get(p))
	}
	return out
}

// Mask renders a credential for display without revealing it.
func Mask(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return "(unset)"
	case len(secret) <= 8:
		return strings.Repeat("*", len(secret))
	default:
		return secret[:3] + strings.Repeat("*", 6) + secret[len(secret)-2:]
	}
}
