// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/dmxstat/internal/config"
	appmetrics "github.com/Thermoquad/dmxstat/internal/metrics"
	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmxstream"
)

func get(t *testing.T, h http.Handler, path string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	h.ServeHTTP(rr, req)
	return rr
}

func newServer(cfg config.HTTPConfig, ready bool, tracker *Tracker) *Server {
	reg := appmetrics.NewRegistry()
	return New(cfg, "/metrics", appmetrics.Handler(reg), func() bool { return ready }, tracker, dmxstream.NewHub(nil, 0))
}

func TestHealthzReadyzMetrics(t *testing.T) {
	cfg := config.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	h := newServer(cfg, true, NewTracker("test")).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
}

func TestReadyzNotReady(t *testing.T) {
	h := newServer(config.HTTPConfig{Addr: ":0"}, false, nil).Handler()
	rr := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/status").Code, "no tracker, no status route")
}

func TestStatus(t *testing.T) {
	tracker := NewTracker("Serial: /dev/ttyUSB0 @ 250000 baud")
	tracker.HandleEvent(dmx.Event{Kind: dmx.EventFrame, Time: time.Now(), Frame: dmx.NewFrame(0x00, []byte{1, 2})})
	tracker.HandleEvent(dmx.Event{Kind: dmx.EventMonitored, Monitored: map[int]int{1: 2}})
	tracker.HandleEvent(dmx.Event{Kind: dmx.EventSyncLost})
	assert.False(t, tracker.Synced())

	h := newServer(config.HTTPConfig{Addr: ":0"}, true, tracker).Handler()
	rr := get(t, h, "/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var s Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.Equal(t, "LOST", s.State)
	assert.Equal(t, uint64(1), s.Frames)
	assert.Equal(t, uint64(1), s.SyncLosses)
	require.NotNil(t, s.LastFrame)
	assert.Equal(t, 2, s.LastFrame.ActiveSlots)
	assert.Equal(t, "DIMMER", s.LastFrame.Kind)
	assert.Equal(t, map[string]int{"1": 2}, s.Monitored)
	assert.Equal(t, 0, s.Subscribers)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.HTTPConfig{Addr: ":0", Username: "admin", Password: "secret"}
	h := newServer(cfg, true, NewTracker("test")).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code, "health stays open")
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/status").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/metrics", "admin", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/status", "admin", "secret").Code)
}
