// Package web provides the HTTP status and control surface for the fall-sensor daemon.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/status"
)

// indexEventLimit bounds the events rendered on the HTML page.
const indexEventLimit = 20

// SessionControl starts and stops monitoring.
type SessionControl interface {
	Start()
	Stop()
}

// EventLog reads and clears recorded falls.
type EventLog interface {
	List(ctx context.Context) ([]logic.FallEvent, error)
	Clear(ctx context.Context) error
}

// Server serves the status page, the event log and session control over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	session    SessionControl
	events     EventLog
	logger     zerolog.Logger
}

// New creates a Server. gatherer may be nil to disable /metrics.
func New(addr string, tracker *status.Tracker, session SessionControl, events EventLog, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		tracker: tracker,
		session: session,
		events:  events,
		logger:  logging.WithComponent("web"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleListEvents).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleClearEvents).Methods(http.MethodDelete)
	r.HandleFunc("/session/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/session/stop", s.handleStop).Methods(http.MethodPost)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(s.logger, r)),
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	events, err := s.events.List(r.Context())
	if err != nil {
		events = nil
	}
	if len(events) > indexEventLimit {
		events = events[:indexEventLimit]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, events); err != nil {
		s.logger.Error().Err(err).Msg("render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.List(r.Context())
	if err != nil {
		http.Error(w, "event store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatEvents(events))
}

func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.events.Clear(r.Context()); err != nil {
		http.Error(w, "event store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.session.Start()
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.session.Stop()
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) writeStatus(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
