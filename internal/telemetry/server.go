package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/diag"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/sampling"
	"github.com/san-kum/seesaw/internal/storage"
)

const DefaultTimeout = 2 * time.Second

type Server struct {
	client  *experiment.Client
	hub     *Hub
	store   *storage.Store
	log     diag.Sink
	timeout time.Duration
	mux     *http.ServeMux
}

// StatusResponse marks snapshots served from the hub's cache while the
// loop is not taking requests.
type StatusResponse struct {
	experiment.Status
	Stale bool `json:"stale"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the routes. store may be nil, which disables /runs.
func NewServer(client *experiment.Client, hub *Hub, store *storage.Store, log diag.Sink) *Server {
	if log == nil {
		log = diag.Discard
	}
	s := &Server{
		client:  client,
		hub:     hub,
		store:   store,
		log:     log,
		timeout: DefaultTimeout,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /tuning", s.handleGetTuning)
	s.mux.HandleFunc("POST /tuning", s.handleSetTuning)
	s.mux.HandleFunc("POST /start", s.handleStart)
	s.mux.HandleFunc("GET /samples", s.handleSamples)
	s.mux.HandleFunc("GET /runs", s.handleRuns)
	s.mux.HandleFunc("/ws", hub.ServeWS)
	return s
}

func (s *Server) SetTimeout(d time.Duration) { s.timeout = d }

func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Logf("telemetry: listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func (s *Server) call(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if last, ok := s.hub.Last(); ok && experiment.Running(last) {
		writeJSON(w, http.StatusOK, StatusResponse{Status: last, Stale: true})
		return
	}
	ctx, cancel := s.call(r)
	defer cancel()
	st, err := s.client.Status(ctx)
	if err != nil {
		if last, ok := s.hub.Last(); ok {
			writeJSON(w, http.StatusOK, StatusResponse{Status: last, Stale: true})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: st})
}

func (s *Server) handleGetTuning(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.call(r)
	defer cancel()
	t, err := s.client.Tuning(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleSetTuning accepts any subset of the tuning fields and answers with
// the tuning actually in effect after clamping.
func (s *Server) handleSetTuning(w http.ResponseWriter, r *http.Request) {
	var p config.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	ctx, cancel := s.call(r)
	defer cancel()
	t, err := s.client.SetTuning(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if last, ok := s.hub.Last(); ok && experiment.Running(last) {
		writeError(w, experiment.ErrAlreadyRunning)
		return
	}
	ctx, cancel := s.call(r)
	defer cancel()
	st, err := s.client.Start(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: st})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.call(r)
	defer cancel()
	samples, err := s.client.Samples(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no run storage configured"})
		return
	}
	runs, err := s.store.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, experiment.ErrAlreadyRunning), errors.Is(err, sampling.ErrNotFinalized):
		return http.StatusConflict
	case errors.Is(err, experiment.ErrServicePaused), errors.Is(err, experiment.ErrNotArmed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCode(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
