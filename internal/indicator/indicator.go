// Package indicator delivers transient user-facing notices from the panel to
// the terminal or to the desktop notification daemon.
package indicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 5 * time.Second

// Level classifies a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one transient message.
type Notice struct {
	Level Level
	Text  string
}

// Notifier is the panel-facing notice sink.
type Notifier interface {
	Notify(context.Context, Notice)
}

// Nop drops every notice.
type Nop struct{}

func (Nop) Notify(context.Context, Notice) {}

// Board holds the single visible notice until it expires or is replaced.
type Board struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	current Notice
	expires time.Time
}

// NewBoard returns a board whose notices expire after ttl.
func NewBoard(ttl time.Duration) *Board {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Board{ttl: ttl, now: time.Now}
}

// Notify replaces the visible notice.
func (b *Board) Notify(_ context.Context, n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = n
	b.expires = b.now().Add(b.ttl)
}

// Current returns the visible notice, if it has not expired.
func (b *Board) Current() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current.Text == "" || !b.now().Before(b.expires) {
		return Notice{}, false
	}
	return b.current, true
}

// Writer prints notices as lines.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter prints to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Notify(_ context.Context, n Notice) {
	if strings.TrimSpace(n.Text) == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.w, "%s %s\n", tag(n.Level), n.Text)
}

func tag(level Level) string {
	switch level {
	case LevelSuccess:
		return "[ok]"
	case LevelWarning:
		return "[warn]"
	case LevelError:
		return "[error]"
	default:
		return "[info]"
	}
}

// Desktop shows notices through the freedesktop notification daemon. Each
// notice replaces the previous one.
type Desktop struct {
	appName string
	ttl     time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	replaceID uint32
}

// NewDesktop returns a desktop notifier.
func NewDesktop(appName string, ttl time.Duration, logger *slog.Logger) *Desktop {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		appName = "yakutan"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Desktop{appName: appName, ttl: ttl, logger: logger}
}

func (d *Desktop) Notify(ctx context.Context, n Notice) {
	if strings.TrimSpace(n.Text) == "" {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()

	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := desktopNotify(runCtx, desktopRequest{
		AppName:   d.appName,
		ReplaceID: d.replaceID,
		Summary:   n.Text,
		Urgency:   urgency(n.Level),
		TimeoutMS: int(d.ttl / time.Millisecond),
	})
	if err != nil {
		if d.logger != nil {
			d.logger.Debug("desktop notice failed", "error", err.Error())
		}
		return
	}
	d.replaceID = id
}

// Dismiss closes the current desktop notice, if any.
func (d *Desktop) Dismiss(ctx context.Context) error {
	d.mu.Lock()
	id := d.replaceID
	d.replaceID = 0
	d.mu.Unlock()
	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

func urgency(level Level) byte {
	switch level {
	case LevelError:
		return 2
	case LevelInfo:
		return 0
	default:
		return 1
	}
}

// Fanout delivers each notice to every sink.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notice) {
	for _, sink := range f {
		if sink != nil {
			sink.Notify(ctx, n)
		}
	}
}
