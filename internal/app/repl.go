package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rbright/yakutan/internal/config"
	"github.com/rbright/yakutan/internal/fields"
)

const replHelp = `commands:
  show                 print settings, service state, and last save
  set FIELD VALUE      change one setting
  start | stop | restart
  reset                restore default settings
  save                 save now
  devices              refresh the microphone list
  status               refresh the service state
  lang CODE            switch language (zh-CN, en)
  help
  quit`

// commandPanel runs the interactive panel: line commands on stdin while the
// status and device pollers run in the background.
func (r Runner) commandPanel(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	s, err := r.openSession(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer r.closeSession(ctx, s, logger)

	pollCtx, stopPolling := context.WithCancel(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		s.panel.Run(pollCtx, cfg.Poll.StatusInterval(), cfg.Poll.DevicesInterval())
	}()
	defer func() {
		stopPolling()
		<-pollDone
	}()

	lines := readLines(ctx, r.Stdin)
	fmt.Fprintln(r.Stdout, replHelp)
	for {
		select {
		case <-ctx.Done():
			return 0
		case line, ok := <-lines:
			if !ok {
				return 0
			}
			if quit := r.replLine(ctx, s, line); quit {
				return 0
			}
		}
	}
}

// readLines streams stdin lines until EOF or until ctx ends.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	out := make(chan string)
	if in == nil {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// replLine executes one command line and reports whether to quit.
func (r Runner) replLine(ctx context.Context, s *session, line string) bool {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	p := s.panel

	switch strings.ToLower(verb) {
	case "":
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(r.Stdout, replHelp)
	case "show":
		r.printPanel(ctx, s)
	case "set":
		field, value, _ := strings.Cut(rest, " ")
		if field == "" {
			fmt.Fprintln(r.Stdout, "usage: set FIELD VALUE")
			return false
		}
		if err := p.SetText(ctx, fields.ID(field), strings.TrimSpace(value)); err != nil {
			r.replError(err)
		}
	case "start":
		r.replError(p.Start(ctx))
	case "stop":
		r.replError(p.Stop(ctx))
	case "restart":
		if err := p.Restart(ctx); err != nil {
			r.opExit(err, true)
		} else {
			fmt.Fprintln(r.Stdout, s.catalog.T("msg.serviceRestarted", nil))
		}
	case "reset":
		_ = p.ResetDefaults(ctx)
	case "save":
		_ = p.SaveNow(ctx)
	case "devices":
		snap := p.RefreshDevices(ctx)
		if snap.Err != nil {
			fmt.Fprintln(r.Stdout, s.catalog.T("msg.networkUnavailable", nil))
			return false
		}
		printDevices(r, snap.Devices, snap.Selected, snap.Default)
	case "status":
		snap := p.RefreshStatus(ctx)
		r.printStatus(s, snap.Running, snap.Err)
	case "lang":
		if _, err := p.SetLanguage(ctx, rest); err != nil {
			r.replError(err)
		}
	default:
		fmt.Fprintf(r.Stdout, "unknown command %q; type help\n", verb)
	}
	return false
}

// replError prints errors the panel did not already show.
func (r Runner) replError(err error) {
	if err == nil {
		return
	}
	r.opExit(err, false)
}

func (r Runner) printStatus(s *session, running bool, err error) {
	switch {
	case err != nil:
		fmt.Fprintln(r.Stdout, s.catalog.T("status.unknown", nil))
	case running:
		fmt.Fprintln(r.Stdout, s.catalog.T("status.running", nil))
	default:
		fmt.Fprintln(r.Stdout, s.catalog.T("status.notRunning", nil))
	}
}

func (r Runner) printPanel(ctx context.Context, s *session) {
	values := s.panel.Fields()
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		v := values[fields.ID(id)]
		switch t := v.(type) {
		case nil:
			v = s.catalog.T("panel.systemDefault", nil)
		case *int:
			if t == nil {
				v = s.catalog.T("panel.systemDefault", nil)
			} else {
				v = *t
			}
		}
		fmt.Fprintf(r.Stdout, "%-28s %v\n", id, v)
	}

	status := s.panel.Status()
	r.printStatus(s, status.Running, status.Err)
	fmt.Fprintf(r.Stdout, "controls: %s\n", s.panel.Controls().State())

	if at, ok := s.panel.LastSaved(ctx); ok {
		fmt.Fprintln(r.Stdout, s.catalog.T("panel.savedAgo", map[string]string{"ago": humanize.Time(at)}))
	} else {
		fmt.Fprintln(r.Stdout, s.catalog.T("panel.neverSaved", nil))
	}
}
