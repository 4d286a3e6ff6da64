// monitor/server.go
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nuanced_trader_go/logs"
	"nuanced_trader_go/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxActivities bounds the in-memory activity log.
const maxActivities = 50

// Activity is one entry in the bot's activity log.
type Activity struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

// Status is the bot state reported by the status endpoint.
type Status struct {
	Status       string                   `json:"status"`
	LastActive   string                   `json:"last_active,omitempty"`
	RunningSince string                   `json:"running_since,omitempty"`
	Mode         string                   `json:"mode"`
	Pairs        []string                 `json:"pairs"`
	Regimes      map[string]signal.Regime `json:"regimes,omitempty"`
	Activities   []Activity               `json:"activities"`
}

// Server exposes the bot status and Prometheus metrics over HTTP.
type Server struct {
	mu     sync.Mutex
	status Status
	srv    *http.Server
}

// NewServer creates a monitor server for the given listen address.
// Mode is "paper_trading", "live_trading", or "dry_run".
func NewServer(addr, mode string, pairs []string) *Server {
	s := &Server{
		status: Status{
			Status:     "offline",
			Mode:       mode,
			Pairs:      pairs,
			Activities: []Activity{},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		logs.Infof("[Monitor] Status endpoint listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("[Monitor] HTTP server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetOnline(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snapshot := s.status
	snapshot.Activities = append([]Activity(nil), s.status.Activities...)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		logs.Errorf("[Monitor] Failed to encode status: %v", err)
	}
}

// SetOnline flips the bot's operational status and timestamps.
func (s *Server) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	if online {
		s.status.Status = "online"
		s.status.LastActive = now
		if s.status.RunningSince == "" {
			s.status.RunningSince = now
		}
	} else {
		s.status.Status = "offline"
		s.status.RunningSince = ""
	}
}

// Touch records recent activity from the trading loop.
func (s *Server) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastActive = time.Now().Format(time.RFC3339)
}

// SetRegimes publishes the latest per-pair market regimes.
func (s *Server) SetRegimes(regimes map[string]signal.Regime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Regimes = regimes
}

// AddActivity prepends an entry to the activity log, keeping the most
// recent entries only.
func (s *Server) AddActivity(message, activityType string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Activity{
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   message,
		Type:      activityType,
	}
	s.status.Activities = append([]Activity{entry}, s.status.Activities...)
	if len(s.status.Activities) > maxActivities {
		s.status.Activities = s.status.Activities[:maxActivities]
	}
}
