package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/returnzero/radiod/internal/app/backend"
	"github.com/returnzero/radiod/internal/app/focus"
	"github.com/returnzero/radiod/internal/app/guard"
	"github.com/returnzero/radiod/internal/app/notify"
	"github.com/returnzero/radiod/internal/app/playback"
	"github.com/returnzero/radiod/internal/domain/station"
	"github.com/returnzero/radiod/internal/infra/engine"
)

func newTestServer(t *testing.T) (*httptest.Server, *playback.Machine) {
	t.Helper()

	adapter := backend.NewAdapter(func() (backend.Engine, error) {
		return engine.NewNull(), nil
	}, time.Second)
	notifier := notify.NewManager("radiod", nil)
	machine := playback.New(playback.Config{
		DuckVolume:     0.1,
		DefaultStation: station.Station{URI: "http://radio.example.net/a.mp3", Title: "A"},
	}, adapter, focus.NewArbiter(nil), guard.New(nil, nil), notifier)

	api := New(machine, notifier)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv, machine
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	var resp *http.Response
	var err error
	if body == "" {
		resp, err = http.Post(url, "application/json", nil)
	} else {
		resp, err = http.Post(url, "application/json", strings.NewReader(body))
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeStatus(t *testing.T, resp *http.Response) statusResponse {
	t.Helper()
	var got statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	return got
}

func waitMachineState(t *testing.T, m *playback.Machine, want playback.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Snapshot().State == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServer_PlayPauseStop(t *testing.T) {
	srv, machine := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/commands/play", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	got := decodeStatus(t, resp)
	// The prepare completes asynchronously: the snapshot may already be
	// past preparing by the time the response is written.
	assert.Contains(t, []string{"preparing", "playing"}, got.State)
	assert.Equal(t, "A", got.Station.Title)

	waitMachineState(t, machine, playback.StatePlaying)

	resp = postJSON(t, srv.URL+"/v1/commands/pause", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	got = decodeStatus(t, resp)
	assert.Equal(t, "paused", got.State)
	assert.Equal(t, "user_request", got.PauseReason)

	resp = postJSON(t, srv.URL+"/v1/commands/stop", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	got = decodeStatus(t, resp)
	assert.Equal(t, "stopped", got.State)
}

func TestServer_PlayWithTargetBody(t *testing.T) {
	srv, machine := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/commands/play",
		`{"uri": "http://radio.example.net/b.mp3", "title": "B"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	got := decodeStatus(t, resp)
	assert.Equal(t, "http://radio.example.net/b.mp3", got.Station.URI)
	assert.Equal(t, "B", got.Station.Title)

	waitMachineState(t, machine, playback.StatePlaying)
	assert.Equal(t, "B", machine.Snapshot().Station.Title)
}

func TestServer_PlayRejectsBadBodies(t *testing.T) {
	srv, machine := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"uri": `},
		{name: "relative uri", body: `{"uri": "stream.mp3"}`},
		{name: "title without uri", body: `{"title": "Orphan"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/commands/play", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Equal(t, playback.StateStopped, machine.Snapshot().State)
}

func TestServer_StopForceQuery(t *testing.T) {
	srv, machine := newTestServer(t)

	// A plain stop while already stopped changes nothing; the machine
	// does not signal completion.
	resp := postJSON(t, srv.URL+"/v1/commands/stop", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	select {
	case <-machine.Done():
		t.Fatal("plain stop while stopped must not settle the machine")
	default:
	}

	resp = postJSON(t, srv.URL+"/v1/commands/stop?force=true", "")
	got := decodeStatus(t, resp)
	assert.Equal(t, "stopped", got.State)
	select {
	case <-machine.Done():
	default:
		t.Fatal("forced stop must settle the machine")
	}
}

func TestServer_Status(t *testing.T) {
	srv, machine := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeStatus(t, resp)
	assert.Equal(t, "stopped", got.State)
	assert.Empty(t, got.PauseReason)
	assert.Equal(t, "none_no_duck", got.Focus)

	postJSON(t, srv.URL+"/v1/commands/play", "")
	waitMachineState(t, machine, playback.StatePlaying)

	resp, err = http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	got = decodeStatus(t, resp)
	assert.Equal(t, "playing", got.State)
	assert.Equal(t, "full", got.Focus)
}

func TestServer_FocusInjection(t *testing.T) {
	srv, machine := newTestServer(t)

	postJSON(t, srv.URL+"/v1/commands/play", "")
	waitMachineState(t, machine, playback.StatePlaying)

	resp := postJSON(t, srv.URL+"/v1/events/focus", `{"gained": false, "can_duck": true}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	got := decodeStatus(t, resp)
	assert.Equal(t, "playing", got.State)
	assert.Equal(t, "none_can_duck", got.Focus)

	resp = postJSON(t, srv.URL+"/v1/events/focus", `{"gained": true}`)
	got = decodeStatus(t, resp)
	assert.Equal(t, "full", got.Focus)

	resp = postJSON(t, srv.URL+"/v1/events/focus", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_EventStream(t *testing.T) {
	srv, machine := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The handler registers its subscription asynchronously; keep
	// re-announcing until the stream delivers an event.
	stopAnnounce := make(chan struct{})
	defer close(stopAnnounce)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopAnnounce:
				return
			case <-ticker.C:
				machine.UpdateStatus()
			}
		}
	}()

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}

	assert.Equal(t, "event: status_paused", eventLine)

	var payload eventPayload
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &payload))
	assert.Equal(t, "status_paused", payload.Type)
	assert.Equal(t, "stopped", payload.State)
	assert.Equal(t, "A", payload.Station.Title)
}
