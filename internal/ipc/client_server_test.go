package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func serveOn(t *testing.T, handler Handler) (string, context.CancelFunc, <-chan error) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "yakutan.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, handler)
	}()
	return socketPath, cancel, serveDone
}

func TestSendRoundTripEchoesRequestID(t *testing.T) {
	socketPath, cancel, serveDone := serveOn(t, Mux{
		CommandStatus: func(context.Context, Request) Response {
			return Response{OK: true, Running: true, Addr: "127.0.0.1:5001"}
		},
	})
	defer cancel()

	req := NewRequest(CommandStatus)
	require.NotEmpty(t, req.ID)

	resp, err := Send(context.Background(), socketPath, req, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.True(t, resp.Running)
	require.Equal(t, "127.0.0.1:5001", resp.Addr)
	require.Equal(t, req.ID, resp.ID)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestMuxRejectsUnknownCommand(t *testing.T) {
	socketPath, cancel, serveDone := serveOn(t, Mux{})
	defer cancel()

	resp, err := Send(context.Background(), socketPath, NewRequest("reboot"), 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, `unknown command "reboot"`)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestSendRejectsMismatchedResponseID(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "yakutan.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		_, _ = bufio.NewReader(conn).ReadBytes('\n')
		_ = json.NewEncoder(conn).Encode(Response{ID: "someone-else", OK: true})
	}()

	_, err = Send(context.Background(), socketPath, NewRequest(CommandStatus), 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match")
}

func TestSendDecodeResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "yakutan.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		_, _ = bufio.NewReader(conn).ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, NewRequest(CommandStatus), 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "yakutan.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, NewRequest(CommandStatus), 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeDecodeRequestErrorResponse(t *testing.T) {
	socketPath, cancel, serveDone := serveOn(t, HandlerFunc(func(context.Context, Request) Response {
		return Response{OK: true}
	}))
	defer cancel()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestProbe(t *testing.T) {
	socketPath, cancel, serveDone := serveOn(t, Mux{
		CommandStatus: func(context.Context, Request) Response { return Response{OK: true} },
	})
	defer cancel()

	alive, probeErr := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, probeErr)
	require.True(t, alive)

	cancel()
	require.NoError(t, <-serveDone)

	alive, probeErr = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, probeErr)
	require.False(t, alive)
}

func TestAbsent(t *testing.T) {
	_, err := Send(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), NewRequest(CommandStatus), 50*time.Millisecond)
	require.True(t, Absent(err))
	require.False(t, Absent(nil))
}
