package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/returnzero/radiod/internal/app/playback"
)

// eventPayload is the wire form of a status notification.
type eventPayload struct {
	Type    string          `json:"type"`
	State   string          `json:"state"`
	Station stationResponse `json:"station"`
	Message string          `json:"message,omitempty"`
}

// chanStream bridges the notifier's Stream interface onto a buffered
// channel; a full buffer rejects the send so one slow client never
// backs up a broadcast.
type chanStream struct {
	ch chan playback.Event
}

func (s *chanStream) Send(ev playback.Event) error {
	select {
	case s.ch <- ev:
		return nil
	default:
		return errors.New("httpapi: event buffer full")
	}
}

// handleEvents streams status notifications as server-sent events
// until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream := &chanStream{ch: make(chan playback.Event, 16)}
	id := s.notifier.Subscribe(stream)
	defer s.notifier.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	zlog.Debug().Str("subscription", id).Msg("httpapi: event subscriber connected")

	for {
		select {
		case <-r.Context().Done():
			zlog.Debug().Str("subscription", id).Msg("httpapi: event subscriber disconnected")
			return
		case ev := <-stream.ch:
			payload := eventPayload{
				Type:  ev.Type.String(),
				State: ev.State.String(),
				Station: stationResponse{
					URI:   ev.Station.URI,
					Title: ev.Station.Title,
				},
				Message: ev.Message,
			}
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
