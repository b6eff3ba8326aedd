// Package remote is the HTTP client for the translator service API.
package remote

import "github.com/rbright/yakutan/internal/settings"

// Result is the reply to every mutating call. MessageID is an opaque
// localization key; Message is the human fallback text.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CredentialCheck is the reply to a credential format check.
type CredentialCheck struct {
	Valid     bool   `json:"valid"`
	MessageID string `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Status is the polled service state.
type Status struct {
	Running bool   `json:"running"`
	Backend string `json:"backend,omitempty"`
}

// Device is one audio input device known to the service.
type Device struct {
	Index            int    `json:"index"`
	Name             string `json:"name"`
	MaxInputChannels int    `json:"max_input_channels,omitempty"`
}

// DeviceList is the reply to an input-device listing.
type DeviceList struct {
	Devices       []Device `json:"devices"`
	DefaultIndex  *int     `json:"default_index,omitempty"`
	SelectedIndex *int     `json:"selected_index,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// StartRequest is the body of a start call.
type StartRequest struct {
	APIKeys settings.CredentialSet `json:"api_keys"`
}

// CheckRequest is the body of a credential check.
type CheckRequest struct {
	APIKey string `json:"api_key"`
}

// KeyPresence reports whether a credential is configured.
type KeyPresence struct {
	APIKeySet bool `json:"api_key_set"`
}

// Environment reports which optional credentials the service process sees.
type Environment struct {
	OpenRouter KeyPresence `json:"openrouter"`
	OpenAI     KeyPresence `json:"openai"`
}
