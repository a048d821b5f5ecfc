// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"strconv"
	"sync"
	"time"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

// FrameStatus summarizes the latest frame
type FrameStatus struct {
	Seq         uint64    `json:"seq"`
	StartCode   uint8     `json:"start_code"`
	Kind        string    `json:"kind"`
	ActiveSlots int       `json:"active_slots"`
	Time        time.Time `json:"time"`
}

// Status is the /status response body
type Status struct {
	Source      string         `json:"source"`
	State       string         `json:"state"`
	Uptime      string         `json:"uptime"`
	Frames      uint64         `json:"frames"`
	FrameRate   float64        `json:"frame_rate"`
	SyncLosses  uint64         `json:"sync_losses"`
	SyncFounds  uint64         `json:"sync_founds"`
	Discarded   uint64         `json:"resync_discarded_bytes"`
	LastFrame   *FrameStatus   `json:"last_frame,omitempty"`
	Monitored   map[string]int `json:"monitored,omitempty"`
	Subscribers int            `json:"stream_subscribers"`
}

// Tracker keeps a snapshot of engine activity for the status endpoint. It
// implements dmx.Handler; Snapshot may be called from any goroutine.
type Tracker struct {
	source string

	mu        sync.Mutex
	stats     *dmx.Statistics
	state     dmx.State
	lastFrame *FrameStatus
	monitored map[int]int
}

var _ dmx.Handler = (*Tracker)(nil)

// NewTracker creates a tracker for the named source
func NewTracker(source string) *Tracker {
	return &Tracker{
		source: source,
		stats:  dmx.NewStatistics(),
		state:  dmx.StateSynced,
	}
}

// HandleEvent implements dmx.Handler
func (t *Tracker) HandleEvent(e dmx.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Update(e)
	switch e.Kind {
	case dmx.EventSyncLost:
		t.state = dmx.StateLost
	case dmx.EventSyncFound:
		t.state = dmx.StateSynced
	case dmx.EventFrame:
		if e.Frame != nil {
			t.lastFrame = &FrameStatus{
				Seq:         e.Frame.Seq(),
				StartCode:   e.Frame.StartCode(),
				Kind:        dmx.FormatStartCode(e.Frame.StartCode()),
				ActiveSlots: dmx.ActiveSlots(e.Frame.Slots()),
				Time:        e.Time,
			}
		}
	case dmx.EventMonitored:
		t.monitored = e.Monitored
	}
}

// Synced reports whether the last sync event left the receiver aligned
func (t *Tracker) Synced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == dmx.StateSynced
}

// Snapshot returns a copy of the current status
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.CalculateRates()
	s := Status{
		Source:     t.source,
		State:      t.state.String(),
		Uptime:     time.Since(t.stats.StartTime).Round(time.Second).String(),
		Frames:     t.stats.TotalFrames,
		FrameRate:  t.stats.FrameRate,
		SyncLosses: t.stats.SyncLosses,
		SyncFounds: t.stats.SyncFounds,
		Discarded:  t.stats.ResyncDiscarded,
	}
	if t.lastFrame != nil {
		lf := *t.lastFrame
		s.LastFrame = &lf
	}
	if len(t.monitored) > 0 {
		s.Monitored = make(map[string]int, len(t.monitored))
		for a, v := range t.monitored {
			s.Monitored[strconv.Itoa(a)] = v
		}
	}
	return s
}
