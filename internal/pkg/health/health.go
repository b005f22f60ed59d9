package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Status is the payload of the /status endpoint.
type Status struct {
	Uptime         string `json:"uptime"`
	OpenChallenges int    `json:"open_challenges"`
	Frozen         bool   `json:"frozen"`
}

// StatusFunc gathers the live part of Status.
type StatusFunc func(ctx context.Context) (open int, frozen bool, err error)

// Server serves liveness and status endpoints for deployment probes.
type Server struct {
	srv     *http.Server
	status  StatusFunc
	started time.Time
}

// NewServer builds the server; call Start to begin listening.
func NewServer(addr string, status StatusFunc) *Server {
	s := &Server{status: status, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", handlePing)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start listens in a background goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("health endpoints listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong\n"))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	open, frozen, err := s.status(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Status{
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		OpenChallenges: open,
		Frozen:         frozen,
	})
}
