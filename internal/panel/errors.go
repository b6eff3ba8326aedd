package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rbright/yakutan/internal/i18n"
	"github.com/rbright/yakutan/internal/indicator"
	"github.com/rbright/yakutan/internal/remote"
)

var (
	ErrMissingCredential       = errors.New("missing credential")
	ErrInvalidCredentialFormat = errors.New("invalid credential format")
	ErrSyncFailed              = errors.New("configuration sync failed")
	ErrRemoteOperationFailed   = errors.New("remote operation failed")
	ErrPersistenceFailed       = errors.New("local persistence failed")
	ErrNetworkUnavailable      = remote.ErrUnavailable
	ErrControlDisabled         = errors.New("control disabled")
)

// OpError is a failed panel operation. MessageID and Message are the
// service-issued id and fallback; Text is what the user was shown.
type OpError struct {
	Op        string
	Kind      error
	MessageID string
	Message   string
	Text      string
	Err       error
}

func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Text != "" {
		msg += ": " + e.Text
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// transportKind classifies a client error: unreachable service or otherwise.
func transportKind(err error, otherwise error) error {
	if errors.Is(err, remote.ErrUnavailable) {
		return ErrNetworkUnavailable
	}
	return otherwise
}

// reporter routes outcomes to the log and to the notice sink.
type reporter struct {
	notifier indicator.Notifier
	catalog  *i18n.Catalog
	logger   *slog.Logger
}

func (r *reporter) t(key string, params map[string]string) string {
	return r.catalog.T(key, params)
}

func (r *reporter) localize(messageID, fallback string) string {
	return r.catalog.Localize(messageID, fallback)
}

func (r *reporter) notice(ctx context.Context, level indicator.Level, text string) {
	r.notifier.Notify(ctx, indicator.Notice{Level: level, Text: text})
}

// fail logs e and shows it to the user.
func (r *reporter) fail(ctx context.Context, e *OpError) *OpError {
	r.log(e)
	r.notice(ctx, indicator.LevelError, e.Text)
	return e
}

// log records e without showing it.
func (r *reporter) log(e *OpError) {
	fields := []any{"op", e.Op, "kind", fmt.Sprint(e.Kind)}
	if e.MessageID != "" {
		fields = append(fields, "message_id", e.MessageID)
	}
	if e.Message != "" {
		fields = append(fields, "message", e.Message)
	}
	if e.Err != nil {
		fields = append(fields, "error", e.Err.Error())
	}
	r.logger.Warn("panel operation failed", fields...)
}
