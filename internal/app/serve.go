package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/rbright/yakutan/internal/config"
	"github.com/rbright/yakutan/internal/ipc"
	"github.com/rbright/yakutan/internal/service"
)

const ipcTimeout = 500 * time.Millisecond

// commandServe runs the service API until interrupted or told to shut down
// over the control socket.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listener net.Listener
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		logger.Warn("control socket disabled", "error", err.Error())
	} else {
		listener, err = ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
		if err != nil {
			if errors.Is(err, ipc.ErrAlreadyRunning) {
				fmt.Fprintln(r.Stderr, "error: yakutan server already running")
				return 1
			}
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() {
			_ = listener.Close()
			_ = os.Remove(socketPath)
		}()
	}

	srv := service.New(service.Options{
		Addr:       cfg.Service.Listen,
		HealthAddr: cfg.Service.GRPCHealth,
		Logger:     logger,
	})
	if err := srv.Start(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "listening on %s\n", srv.Addr())
	if srv.HealthAddr() != "" {
		fmt.Fprintf(r.Stdout, "health on %s\n", srv.HealthAddr())
	}

	ipcErr := make(chan error, 1)
	if listener != nil {
		handler := ipc.Mux{
			ipc.CommandStatus: func(context.Context, ipc.Request) ipc.Response {
				return ipc.Response{OK: true, Running: srv.Running(), Addr: srv.Addr(), HealthAddr: srv.HealthAddr()}
			},
			ipc.CommandShutdown: func(context.Context, ipc.Request) ipc.Response {
				logger.Info("shutdown requested over control socket")
				cancel()
				return ipc.Response{OK: true, Message: "shutting down"}
			},
		}
		go func() { ipcErr <- ipc.Serve(ctx, listener, handler) }()
	} else {
		close(ipcErr)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stopCancel()
	exit := 0
	if err := srv.Stop(stopCtx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		exit = 1
	}
	if err := <-ipcErr; err != nil {
		fmt.Fprintf(r.Stderr, "error: control socket failed: %v\n", err)
		exit = 1
	}
	fmt.Fprintln(r.Stdout, "stopped")
	return exit
}

func (r Runner) commandShutdown(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	resp, err := ipc.Send(ctx, socketPath, ipc.NewRequest(ipc.CommandShutdown), ipcTimeout)
	if err != nil {
		if ipc.Absent(err) {
			fmt.Fprintln(r.Stderr, "error: no running yakutan server")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !resp.OK {
		fmt.Fprintf(r.Stderr, "error: %s\n", resp.Error)
		return 1
	}
	fmt.Fprintln(r.Stdout, resp.Message)
	return 0
}
