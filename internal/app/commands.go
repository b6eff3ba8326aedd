package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rbright/yakutan/internal/cli"
	"github.com/rbright/yakutan/internal/config"
	"github.com/rbright/yakutan/internal/fields"
	"github.com/rbright/yakutan/internal/panel"
	"github.com/rbright/yakutan/internal/remote"
	"github.com/rbright/yakutan/internal/settings"
)

func (r Runner) commandStatus(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	client, err := r.newClient(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	status, err := client.Status(ctx)
	if err != nil {
		logger.Warn("status check failed", "error", err.Error())
		if errors.Is(err, remote.ErrUnavailable) {
			fmt.Fprintln(r.Stdout, "unavailable")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	state := "stopped"
	if status.Running {
		state = "running"
	}
	if status.Backend != "" {
		state += " (" + status.Backend + ")"
	}
	fmt.Fprintln(r.Stdout, state)
	return 0
}

func (r Runner) commandConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	store, err := r.openStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	snap, ok, err := store.LoadConfig(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(r.Stdout, "no saved configuration; defaults apply")
	} else {
		dump, err := store.Dump(ctx)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintln(r.Stdout, dump)
		if !snap.SavedAt.IsZero() {
			fmt.Fprintf(r.Stdout, "saved %s\n", humanize.Time(snap.SavedAt))
		}
	}

	creds, err := store.Credentials(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	for _, p := range settings.CredentialProviders {
		fmt.Fprintf(r.Stdout, "%s: %s\n", p, settings.Mask(creds.Get(p)))
	}
	return 0
}

func (r Runner) commandDevices(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	client, err := r.newClient(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	list, err := client.InputDevices(ctx)
	if err != nil {
		logger.Warn("device listing failed", "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if list.Error != "" {
		fmt.Fprintf(r.Stderr, "error: %s\n", list.Error)
		return 1
	}
	if len(list.Devices) == 0 {
		fmt.Fprintln(r.Stdout, "no input devices found")
		return 1
	}
	printDevices(r, list.Devices, list.SelectedIndex, list.DefaultIndex)
	return 0
}

func printDevices(r Runner, devices []remote.Device, selected, def *int) {
	for _, d := range devices {
		mark := " "
		if selected != nil && *selected == d.Index {
			mark = "*"
		}
		suffix := ""
		if def != nil && *def == d.Index {
			suffix = " (default)"
		}
		fmt.Fprintf(r.Stdout, "%s %d %s%s\n", mark, d.Index, d.Name, suffix)
	}
}

func (r Runner) commandCheckKey(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) int {
	catalog, err := r.newCatalog(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	key := ""
	if len(args) > 0 {
		key = args[0]
	} else {
		store, err := r.openStore(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		creds, err := store.Credentials(ctx)
		_ = store.Close()
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		key = creds.Get(settings.ProviderKeyDashScope)
	}

	client, err := r.newClient(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	check, err := client.CheckCredential(ctx, strings.TrimSpace(key))
	if err != nil {
		if errors.Is(err, remote.ErrUnavailable) {
			fmt.Fprintln(r.Stderr, catalog.T("msg.networkUnavailable", nil))
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	text := catalog.Localize(check.MessageID, check.Message)
	if !check.Valid {
		fmt.Fprintln(r.Stdout, catalog.T("msg.dashscopeValidationFailed", nil)+text)
		return 1
	}
	fmt.Fprintln(r.Stdout, text)
	return 0
}

func (r Runner) commandLifecycle(ctx context.Context, cfg config.Config, logger *slog.Logger, cmd cli.Command) int {
	s, err := r.openSession(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer r.closeSession(ctx, s, logger)

	s.panel.RefreshStatus(ctx)

	switch cmd {
	case cli.CommandStart:
		err = s.panel.Start(ctx)
	case cli.CommandStop:
		err = s.panel.Stop(ctx)
	case cli.CommandRestart:
		err = s.panel.Restart(ctx)
		if err == nil {
			fmt.Fprintln(r.Stdout, s.catalog.T("msg.serviceRestarted", nil))
		}
	}
	return r.opExit(err, cmd == cli.CommandRestart)
}

// opExit maps a panel operation result to an exit code. Most failures were
// already shown as notices; gate refusals and restart failures were not.
func (r Runner) opExit(err error, silentKind bool) int {
	if err == nil {
		return 0
	}
	var opErr *panel.OpError
	if errors.As(err, &opErr) && (silentKind || errors.Is(err, panel.ErrControlDisabled)) {
		text := opErr.Text
		if text == "" {
			text = err.Error()
		}
		fmt.Fprintln(r.Stderr, text)
	}
	return 1
}

func (r Runner) commandSet(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) int {
	assignments, err := cli.ParseAssignments(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	s, err := r.openSession(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer r.closeSession(ctx, s, logger)

	s.panel.RefreshStatus(ctx)
	for _, a := range assignments {
		if err := s.panel.SetText(ctx, fields.ID(a.Field), a.Value); err != nil {
			var opErr *panel.OpError
			if !errors.As(err, &opErr) {
				fmt.Fprintf(r.Stderr, "error: %v\n", err)
			}
			return 1
		}
	}

	if err := s.panel.SaveNow(ctx); err != nil {
		return 1
	}
	return 0
}

func (r Runner) closeSession(ctx context.Context, s *session, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.close(ctx); err != nil {
		logger.Warn("session close failed", "error", err.Error())
	}
}
