// Package health probes the translator's gRPC health endpoint.
package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

const defaultTimeout = 3 * time.Second

// Result is one health check outcome.
type Result struct {
	Endpoint string
	Service  string
	Status   healthpb.HealthCheckResponse_ServingStatus
	// JSON is the protojson rendering of the response, set when requested.
	JSON string
}

// Serving reports whether the checked service is SERVING.
func (r Result) Serving() bool {
	return r.Status == healthpb.HealthCheckResponse_SERVING
}

// Options configures a probe.
type Options struct {
	Endpoint string
	Service  string
	Timeout  time.Duration
	Dump     bool
}

// Probe dials endpoint, waits for readiness, and runs one Health/Check call.
func Probe(ctx context.Context, opts Options) (Result, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return Result{}, errors.New("health endpoint is empty")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return Result{}, fmt.Errorf("dial health grpc %q: %w", endpoint, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		return Result{}, fmt.Errorf("wait for health grpc readiness: %w", err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: opts.Service})
	if err != nil {
		return Result{}, fmt.Errorf("health check %q: %w", opts.Service, err)
	}

	result := Result{Endpoint: endpoint, Service: opts.Service, Status: resp.GetStatus()}
	if opts.Dump {
		raw, err := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(resp)
		if err != nil {
			return Result{}, fmt.Errorf("render health response: %w", err)
		}
		result.JSON = string(raw)
	}
	return result, nil
}
