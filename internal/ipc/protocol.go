// Package ipc is the local control channel of a running `yakutan serve` process.
package ipc

import "github.com/google/uuid"

const (
	CommandStatus   = "status"
	CommandShutdown = "shutdown"
)

// Request is one newline-delimited JSON command.
type Request struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// NewRequest tags a command with a fresh correlation id.
func NewRequest(command string) Request {
	return Request{ID: uuid.NewString(), Command: command}
}

// Response reports the server state back to the caller.
type Response struct {
	ID         string `json:"id,omitempty"`
	OK         bool   `json:"ok"`
	Running    bool   `json:"running"`
	Addr       string `json:"addr,omitempty"`
	HealthAddr string `json:"health_addr,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}
