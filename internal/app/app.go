package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/rbright/yakutan/internal/cli"
	"github.com/rbright/yakutan/internal/config"
	"github.com/rbright/yakutan/internal/doctor"
	"github.com/rbright/yakutan/internal/logging"
	"github.com/rbright/yakutan/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Logger *slog.Logger

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr, Stdin: os.Stdin}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("yakutan"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("yakutan"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(logging.Options{
		MaxSizeMB:  cfgLoaded.Config.Log.MaxSizeMB,
		MaxBackups: cfgLoaded.Config.Log.MaxBackups,
		Level:      levelFromString(cfgLoaded.Config.Log.Level),
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}
	if r.LookupEnv == nil {
		r.LookupEnv = os.LookupEnv
	}
	// Notices arrive from background save cycles.
	r.Stdout = &syncWriter{w: r.Stdout}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		// A missing config file is the normal first-run state.
		if !cfgLoaded.Exists {
			logger.Info("config warning", "message", w.Message)
			continue
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	cfg := cfgLoaded.Config
	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandServe:
		return r.commandServe(ctx, cfg, logger)
	case cli.CommandShutdown:
		return r.commandShutdown(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx, cfg, logger)
	case cli.CommandConfig:
		return r.commandConfig(ctx, cfg, logger)
	case cli.CommandDevices:
		return r.commandDevices(ctx, cfg, logger)
	case cli.CommandCheckKey:
		return r.commandCheckKey(ctx, cfg, logger, parsed.Args)
	case cli.CommandStart, cli.CommandStop, cli.CommandRestart:
		return r.commandLifecycle(ctx, cfg, logger, parsed.Command)
	case cli.CommandSet:
		return r.commandSet(ctx, cfg, logger, parsed.Args)
	case cli.CommandPanel:
		return r.commandPanel(ctx, cfg, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func levelFromString(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
