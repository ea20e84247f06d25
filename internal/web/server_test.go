package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/status"
)

type fakeSession struct {
	mu      sync.Mutex
	tracker *status.Tracker
	starts  int
	stops   int
}

func (f *fakeSession) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.tracker.SetSession("RUNNING")
}

func (f *fakeSession) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.tracker.SetSession("STOPPED")
}

type fakeLog struct {
	mu     sync.Mutex
	events []logic.FallEvent
	err    error
}

func (f *fakeLog) List(context.Context) ([]logic.FallEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]logic.FallEvent(nil), f.events...), nil
}

func (f *fakeLog) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = nil
	return nil
}

type testEnv struct {
	ts      *httptest.Server
	tracker *status.Tracker
	session *fakeSession
	log     *fakeLog
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Threshold:   0.8,
		CooldownMs:  30000,
		WindowSize:  6,
		WindowMode:  "interleaved",
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
	}
	tr := status.NewTracker(start, cfg)
	env := &testEnv{
		tracker: tr,
		session: &fakeSession{tracker: tr},
		log: &fakeLog{events: []logic.FallEvent{
			{ID: "b", Timestamp: start.Add(2 * time.Hour), Probability: 0.97},
			{ID: "a", Timestamp: start.Add(time.Hour), Probability: 0.85},
		}},
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "fall_sensor_test_total", Help: "test"}))

	srv := New(":0", tr, env.session, env.log, reg)
	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.SetSession("RUNNING")
	env.tracker.SetModelLoaded(true)
	env.tracker.SetMQTTConnected(true)
	env.tracker.Update(logic.DecisionCounts{Evaluated: 12, Detections: 1}, 12, 0)

	resp := do(t, http.MethodGet, env.ts.URL+"/index.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	assert.Equal(t, "RUNNING", sj.Status.Session)
	assert.True(t, sj.Status.ModelLoaded)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, 1, sj.Status.Counts.Detections)
	assert.Equal(t, float32(0.8), sj.Status.Config.Threshold)
}

func TestHTMLEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.SetSession("RUNNING")

	for _, path := range []string{"/", "/index.html"} {
		resp := do(t, http.MethodGet, env.ts.URL+path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		html := string(body)
		assert.Contains(t, html, "Fall Sensor")
		assert.Contains(t, html, "RUNNING")
		assert.Contains(t, html, "97.0%")
		assert.Contains(t, html, "unavailable (detection disabled)")
	}
}

func TestHTMLWithBrokenEventLog(t *testing.T) {
	env := newTestServer(t)
	env.log.err = errors.New("db down")

	resp := do(t, http.MethodGet, env.ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "None recorded.")
}

func TestUnknownPath(t *testing.T) {
	env := newTestServer(t)
	resp := do(t, http.MethodGet, env.ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListEvents(t *testing.T) {
	env := newTestServer(t)

	resp := do(t, http.MethodGet, env.ts.URL+"/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ej EventsJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ej))
	require.Len(t, ej.Events, 2)
	assert.Equal(t, "b", ej.Events[0].ID)
	assert.Equal(t, "2026-01-01T02:00:00Z", ej.Events[0].Timestamp)
	assert.Equal(t, float32(0.97), ej.Events[0].Probability)
}

func TestListEventsEmptyIsArray(t *testing.T) {
	env := newTestServer(t)
	env.log.events = nil

	resp := do(t, http.MethodGet, env.ts.URL+"/events")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"events": []`)
}

func TestClearEvents(t *testing.T) {
	env := newTestServer(t)

	resp := do(t, http.MethodDelete, env.ts.URL+"/events")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	events, _ := env.log.List(context.Background())
	assert.Empty(t, events)
}

func TestEventStoreFailure(t *testing.T) {
	env := newTestServer(t)
	env.log.err = errors.New("db down")

	assert.Equal(t, http.StatusServiceUnavailable, do(t, http.MethodGet, env.ts.URL+"/events").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, http.MethodDelete, env.ts.URL+"/events").StatusCode)
}

func TestSessionControl(t *testing.T) {
	env := newTestServer(t)

	resp := do(t, http.MethodPost, env.ts.URL+"/session/start")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	assert.Equal(t, "RUNNING", sj.Status.Session)

	resp = do(t, http.MethodPost, env.ts.URL+"/session/stop")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	assert.Equal(t, "STOPPED", sj.Status.Session)

	assert.Equal(t, 1, env.session.starts)
	assert.Equal(t, 1, env.session.stops)
}

func TestSessionControlRequiresPost(t *testing.T) {
	env := newTestServer(t)
	resp := do(t, http.MethodGet, env.ts.URL+"/session/start")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, 0, env.session.starts)
}

func TestMetricsAndHealth(t *testing.T) {
	env := newTestServer(t)

	resp := do(t, http.MethodGet, env.ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "fall_sensor_test_total"))

	resp = do(t, http.MethodGet, env.ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
