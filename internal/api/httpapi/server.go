// Package httpapi exposes the local control surface for the playback
// daemon: command endpoints, status, focus-event injection and a
// server-sent event stream of status notifications.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/returnzero/radiod/internal/app/notify"
	"github.com/returnzero/radiod/internal/app/playback"
	"github.com/returnzero/radiod/internal/domain/station"
)

// Server wires the control API around the machine and the notifier.
type Server struct {
	machine  *playback.Machine
	notifier *notify.Manager
}

// New creates the control API server.
func New(machine *playback.Machine, notifier *notify.Manager) *Server {
	return &Server{machine: machine, notifier: notifier}
}

// Router builds the chi router for the control API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/commands/toggle", s.handleToggle)
		r.Post("/commands/play", s.handlePlay)
		r.Post("/commands/pause", s.handlePause)
		r.Post("/commands/stop", s.handleStop)
		r.Get("/status", s.handleStatus)
		r.Post("/events/focus", s.handleFocus)
		r.Get("/events", s.handleEvents)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// playRequest optionally replaces the bound station.
type playRequest struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// focusRequest injects a host focus change.
type focusRequest struct {
	Gained  bool `json:"gained"`
	CanDuck bool `json:"can_duck"`
}

// statusResponse is the canonical state snapshot.
type statusResponse struct {
	State       string          `json:"state"`
	PauseReason string          `json:"pause_reason,omitempty"`
	Focus       string          `json:"focus"`
	Station     stationResponse `json:"station"`
}

type stationResponse struct {
	URI   string `json:"uri,omitempty"`
	Title string `json:"title,omitempty"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	target, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}
	s.machine.TogglePlayback(target)
	s.writeSnapshot(w, http.StatusAccepted)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	target, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}
	s.machine.Play(target)
	s.writeSnapshot(w, http.StatusAccepted)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.machine.Pause()
	s.writeSnapshot(w, http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	s.machine.Stop(force)
	s.writeSnapshot(w, http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("notify") == "true" {
		s.machine.UpdateStatus()
	}
	s.writeSnapshot(w, http.StatusOK)
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Gained {
		s.machine.FocusGained()
	} else {
		s.machine.FocusLost(req.CanDuck)
	}
	s.writeSnapshot(w, http.StatusAccepted)
}

// decodeTarget reads the optional play target. An empty body keeps the
// bound station; a malformed one is rejected.
func (s *Server) decodeTarget(w http.ResponseWriter, r *http.Request) (*station.Station, bool) {
	var req playRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		if errors.Is(err, io.EOF) { // no body
			return nil, true
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if req.URI == "" {
		if req.Title != "" {
			// A bound station is only ever replaced wholesale; a bare
			// title has nothing to attach to.
			writeError(w, http.StatusBadRequest, "title requires uri")
			return nil, false
		}
		return nil, true
	}
	st, err := station.New(req.URI, req.Title)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &st, true
}

func (s *Server) writeSnapshot(w http.ResponseWriter, code int) {
	snap := s.machine.Snapshot()
	resp := statusResponse{
		State: snap.State.String(),
		Focus: snap.Focus.String(),
		Station: stationResponse{
			URI:   snap.Station.URI,
			Title: snap.Station.Title,
		},
	}
	if snap.State == playback.StatePaused {
		resp.PauseReason = snap.PauseReason.String()
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Err(err).Msg("httpapi: write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
