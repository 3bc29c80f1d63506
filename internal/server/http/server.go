// Package httpserver exposes the dashboard surface: the live telemetry
// stream over SSE, the inbound command endpoint, the mission library,
// and health/metrics.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/CarletonURocketry/ground-station/internal/archive"
	"github.com/CarletonURocketry/ground-station/internal/hub"
	"github.com/CarletonURocketry/ground-station/internal/metrics"
	"github.com/CarletonURocketry/ground-station/pkg/log"
)

// Options carries the server's collaborators. Hub is required; Library
// and Snapshot are optional and their endpoints degrade gracefully.
type Options struct {
	Hub      *hub.Hub
	Library  *archive.Library
	Snapshot func() []byte
	Logger   log.Logger
}

type Server struct {
	hub      *hub.Hub
	library  *archive.Library
	snapshot func() []byte
	logger   log.Logger
	srv      *http.Server
	lis      net.Listener
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()
	s := &Server{
		hub:      opts.Hub,
		library:  opts.Library,
		snapshot: opts.Snapshot,
		logger:   logger,
		srv:      &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/telemetry", s.handleTelemetry)
	mux.HandleFunc("/v1/telemetry/stream", s.handleStreamSSE)
	mux.HandleFunc("/v1/command", s.handleCommand)
	mux.HandleFunc("/v1/missions", s.handleMissions)
	mux.Handle("/metrics", metrics.Handler())
	return s
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully with a bounded drain.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("dashboard listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"subscribers": s.hub.Subscribers(),
	})
}

// handleTelemetry returns the current snapshot for one-shot consumers.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.snapshot == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.snapshot())
}

// handleStreamSSE is the persistent dashboard connection. Each publish
// arrives as one SSE data event; the first event is the join-time
// snapshot replay.
func (s *Server) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ch, err := s.hub.Subscribe()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	defer s.hub.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Subscriber-Id", strconv.FormatUint(id, 10))

	sink := sseSink{w: w}
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				// Dropped by the hub for stalling, or hub closed.
				return
			}
			if err := sink.Send(payload); err != nil {
				return
			}
			sink.Flush()
		}
	}
}

type commandReq struct {
	Subscriber uint64 `json:"subscriber"`
	Command    string `json:"command"`
}

// handleCommand accepts a free-text command from a dashboard client and
// forwards it through the hub to the command sink.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req commandReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.hub.SubmitCommand(r.Context(), req.Subscriber, req.Command); err != nil {
		if errors.Is(err, hub.ErrClosed) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.library == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	missions, err := s.library.List()
	if err != nil {
		s.logger.Error("list missions failed", log.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if missions == nil {
		missions = []archive.MissionMeta{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(missions)
}

