// Package service is the translator service API: configuration, lifecycle,
// credential checks, and input-device discovery over JSON/HTTP, plus a gRPC
// health endpoint that mirrors whether the pipeline runs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rbright/yakutan/internal/audio"
	"github.com/rbright/yakutan/internal/remote"
	"github.com/rbright/yakutan/internal/settings"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	maxBodyBytes = 64 * 1024
	stopTimeout  = 10 * time.Second

	// HealthService is the gRPC health service name tracking the pipeline.
	HealthService = "yakutan.Translator"

	placeholderKey = "<your-dashscope-api-key>"
)

// SourceLister enumerates audio input sources.
type SourceLister func(context.Context) ([]audio.Source, error)

// Options configures a Server.
type Options struct {
	Addr       string
	HealthAddr string
	Runner     Runner
	Sources    SourceLister
	Logger     *slog.Logger

	// Setenv and Getenv default to the process environment.
	Setenv func(key, value string) error
	Getenv func(key string) string
}

// Server serves the service API.
type Server struct {
	addr       string
	healthAddr string
	runner     Runner
	sources    SourceLister
	logger     *slog.Logger
	setenv     func(string, string) error
	getenv     func(string) string

	router *mux.Router
	health *health.Server

	httpServer *http.Server
	grpcServer *grpc.Server
	listener   net.Listener
	healthLn   net.Listener

	// lifetime bounds the pipeline, not the request that started it.
	lifetime context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	cfg     settings.Configuration
	running bool
}

// New builds a server. Nothing listens until Start.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewLogRunner(logger)
	}
	sources := opts.Sources
	if sources == nil {
		sources = audio.ListSources
	}
	setenv := opts.Setenv
	if setenv == nil {
		setenv = os.Setenv
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	lifetime, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:       strings.TrimSpace(opts.Addr),
		healthAddr: strings.TrimSpace(opts.HealthAddr),
		runner:     runner,
		sources:    sources,
		logger:     logger,
		setenv:     setenv,
		getenv:     getenv,
		router:     mux.NewRouter(),
		health:     health.NewServer(),
		lifetime:   lifetime,
		cancel:     cancel,
		cfg:        settings.Default(),
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleSetConfig).Methods(http.MethodPost)
	api.HandleFunc("/config/defaults", s.handleDefaults).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/env", s.handleEnv).Methods(http.MethodGet)
	api.HandleFunc("/audio/input-devices", s.handleInputDevices).Methods(http.MethodGet)
	api.HandleFunc("/service/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/service/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/service/restart", s.handleRestart).Methods(http.MethodPost)
	api.HandleFunc("/check-api-key", s.handleCheckKey).Methods(http.MethodPost)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the gRPC health server.
func (s *Server) Health() *health.Server {
	return s.health
}

// Start binds the HTTP listener and, when configured, the gRPC health
// listener, and serves both in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind service api: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("service api stopped unexpectedly", "error", err.Error())
		}
	}()
	s.logger.Info("service api listening", "addr", ln.Addr().String())

	if s.healthAddr == "" {
		return nil
	}
	hln, err := net.Listen("tcp", s.healthAddr)
	if err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("bind health endpoint: %w", err)
	}
	s.healthLn = hln
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	go func() {
		if err := s.grpcServer.Serve(hln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("health endpoint stopped unexpectedly", "error", err.Error())
		}
	}()
	s.logger.Info("health endpoint listening", "addr", hln.Addr().String())
	return nil
}

// Addr returns the bound HTTP address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// HealthAddr returns the bound gRPC health address, if any.
func (s *Server) HealthAddr() string {
	if s.healthLn != nil {
		return s.healthLn.Addr().String()
	}
	return s.healthAddr
}

// Stop stops the pipeline if it runs and shuts both listeners down.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if running {
		if err := s.runner.Stop(ctx); err != nil {
			s.logger.Warn("pipeline stop failed during shutdown", "error", err.Error())
		}
	}
	s.health.Shutdown()
	s.cancel()

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown service api: %w", err)
		}
	}
	s.logger.Info("service api stopped")
	return nil
}

// Running reports whether the pipeline runs.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Config returns the current configuration.
func (s *Server) Config() settings.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.cfg)
}

type statusReply struct {
	Running bool             `json:"running"`
	Backend settings.Backend `json:"backend"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	reply := statusReply{Running: s.running, Backend: s.cfg.ASR.Backend}
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Config())
}

func (s *Server) handleDefaults(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, settings.Default())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "msg.configUpdateFailed", "Configuration update failed", err)
		return
	}

	s.mu.Lock()
	next, err := mergeConfig(s.cfg, body)
	if err != nil {
		s.mu.Unlock()
		s.fail(w, http.StatusInternalServerError, "msg.configUpdateFailed", "Configuration update failed", err)
		return
	}
	s.cfg = next
	running := s.running
	s.mu.Unlock()

	if running {
		s.runner.Reload(clone(next))
	}
	s.logger.Info("configuration updated",
		"backend", next.ASR.Backend,
		"api_type", next.Translation.Provider.Encode(),
		"request_id", r.Header.Get("X-Request-ID"),
	)
	s.writeJSON(w, http.StatusOK, remote.Result{Success: true, MessageID: "msg.configUpdated", Message: "Configuration updated"})
}

func (s *Server) handleEnv(w http.ResponseWriter, _ *http.Request) {
	openai := s.getenv("OPENAI_API_KEY") != ""
	openrouter := s.getenv(settings.ProviderKeyOpenRouter.EnvVar()) != ""
	s.writeJSON(w, http.StatusOK, remote.Environment{
		OpenRouter: remote.KeyPresence{APIKeySet: openai || openrouter},
		OpenAI:     remote.KeyPresence{APIKeySet: openai},
	})
}

func (s *Server) handleInputDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	selected := clone(s.cfg).MicControl.DeviceIndex
	s.mu.Unlock()

	reply := remote.DeviceList{Devices: []remote.Device{}, SelectedIndex: selected}
	sources, err := s.sources(r.Context())
	if err != nil {
		s.logger.Warn("list input devices failed", "error", err.Error())
		reply.Error = err.Error()
		s.writeJSON(w, http.StatusOK, reply)
		return
	}

	inputs, def := audio.Inputs(sources)
	for _, in := range inputs {
		reply.Devices = append(reply.Devices, remote.Device{Index: in.Index, Name: in.Name})
	}
	reply.DefaultIndex = def
	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req remote.StartRequest
	if err := decodeOptional(w, r, &req); err != nil {
		s.fail(w, http.StatusInternalServerError, "msg.startFailed", "Start failed", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.writeJSON(w, http.StatusOK, remote.Result{MessageID: "msg.serviceAlreadyRunning", Message: "Service is already running"})
		return
	}

	if err := s.exportCredentials(req.APIKeys); err != nil {
		s.fail(w, http.StatusInternalServerError, "msg.startFailed", "Start failed", err)
		return
	}
	if err := s.runner.Start(s.lifetime, clone(s.cfg)); err != nil {
		s.fail(w, http.StatusInternalServerError, "msg.startFailed", "Start failed", err)
		return
	}
	s.setRunning(true)
	s.writeJSON(w, http.StatusOK, remote.Result{Success: true, MessageID: "msg.serviceStarted", Message: "Service started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.writeJSON(w, http.StatusOK, remote.Result{MessageID: "msg.serviceNotRunning", Message: "Service is not running"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()
	if err := s.runner.Stop(ctx); err != nil {
		s.fail(w, http.StatusInternalServerError, "msg.stopFailed", "Stop failed", err)
		return
	}
	s.setRunning(false)
	s.writeJSON(w, http.StatusOK, remote.Result{Success: true, MessageID: "msg.serviceStopped", Message: "Service stopped"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.writeJSON(w, http.StatusOK, remote.Result{MessageID: "msg.noRestartNeeded", Message: "Service is not running; no restart needed"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()
	if err := s.runner.Stop(ctx); err != nil {
		s.fail(w, http.StatusInternalServerError, "msg.restartFailed", "Restart failed", err)
		return
	}
	s.setRunning(false)
	if err := s.runner.Start(s.lifetime, clone(s.cfg)); err != nil {
		s.fail(w, http.StatusInternalServerError, "msg.restartFailed", "Restart failed", err)
		return
	}
	s.setRunning(true)
	s.writeJSON(w, http.StatusOK, remote.Result{Success: true, MessageID: "msg.serviceRestarted", Message: "Service restarted"})
}

func (s *Server) handleCheckKey(w http.ResponseWriter, r *http.Request) {
	var req remote.CheckRequest
	if err := decodeOptional(w, r, &req); err != nil {
		s.logger.Warn("check api key failed", "error", err.Error())
		s.writeJSON(w, http.StatusInternalServerError, remote.CredentialCheck{MessageID: "msg.checkFailed", Message: "Check failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, CheckDashScopeKey(req.APIKey))
}

// CheckDashScopeKey is the format-only DashScope key check.
func CheckDashScopeKey(key string) remote.CredentialCheck {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return remote.CredentialCheck{MessageID: "msg.enterDashscopeKey", Message: "Enter a DashScope API key"}
	case key == placeholderKey:
		return remote.CredentialCheck{MessageID: "msg.replacePlaceholder", Message: "Replace the placeholder with a real API key"}
	case !strings.HasPrefix(key, "sk-"):
		return remote.CredentialCheck{MessageID: "msg.invalidKeyFormat", Message: "Invalid API key format (expected an sk- prefix)"}
	default:
		return remote.CredentialCheck{Valid: true, MessageID: "msg.keyFormatValid", Message: "API key format is valid"}
	}
}

// exportCredentials puts every populated credential into the environment
// the pipeline reads. Callers hold s.mu.
func (s *Server) exportCredentials(keys settings.CredentialSet) error {
	for _, p := range settings.CredentialProviders {
		value := keys.Get(p)
		if value == "" {
			continue
		}
		if err := s.setenv(p.EnvVar(), value); err != nil {
			return fmt.Errorf("export %s: %w", p.EnvVar(), err)
		}
	}
	return nil
}

// setRunning flips the state and the health status. Callers hold s.mu.
func (s *Server) setRunning(running bool) {
	s.running = running
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, status)
	s.logger.Info("service state changed", "running", running)
}

func (s *Server) fail(w http.ResponseWriter, code int, messageID, message string, err error) {
	s.logger.Warn("service request failed", "message_id", messageID, "error", err.Error())
	s.writeJSON(w, code, remote.Result{MessageID: messageID, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "error", err.Error())
	}
}

// decodeOptional decodes a JSON body; an empty body leaves v untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
