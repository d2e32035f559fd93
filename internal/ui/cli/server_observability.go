package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	coreapp "rtinfer/internal/core/app"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionSource reports the analysis session currently being served.
type SessionSource interface {
	Session() *coreapp.Session
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status   string    `json:"status"`
	Files    int       `json:"files"`
	Methods  int       `json:"methods"`
	Errors   int       `json:"errors"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
}

type ObservabilityServer struct {
	addr     string
	sessions SessionSource
	server   *http.Server
	listener net.Listener
}

func NewObservabilityServer(addr string, sessions SessionSource) *ObservabilityServer {
	return &ObservabilityServer{
		addr:     addr,
		sessions: sessions,
	}
}

// Handler serves /metrics and /health.
func (s *ObservabilityServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := s.health()
		w.Header().Set("Content-Type", "application/json")
		if status.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

// health is "loading" until the first session exists.
func (s *ObservabilityServer) health() HealthStatus {
	sess := s.sessions.Session()
	if sess == nil {
		return HealthStatus{Status: "loading"}
	}
	return HealthStatus{
		Status:   "up",
		Files:    len(sess.Files),
		Methods:  len(sess.Registry.Methods()),
		Errors:   len(sess.Errors),
		LoadedAt: sess.LoadedAt.UTC(),
	}
}

func (s *ObservabilityServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	slog.Info("observability server starting", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server failed", "error", err)
		}
	}()

	return nil
}

// Addr is the bound listen address, useful when addr asked for port 0.
func (s *ObservabilityServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
