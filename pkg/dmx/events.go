// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import "time"

// EventKind identifies an engine notification
type EventKind int

const (
	EventSyncLost EventKind = iota
	EventSyncFound
	EventFrame
	EventMonitored
)

func (k EventKind) String() string {
	switch k {
	case EventSyncLost:
		return "SYNC_LOST"
	case EventSyncFound:
		return "SYNC_FOUND"
	case EventFrame:
		return "FRAME"
	case EventMonitored:
		return "MONITORED"
	default:
		return "UNKNOWN"
	}
}

// ResyncInfo describes a completed resynchronization
type ResyncInfo struct {
	Chunks    int           // 516-byte chunks scanned for the marker
	Discarded int           // raw bytes dropped while realigning
	Duration  time.Duration // time spent in LOST
}

// Event is one notification from the engine.
//
// Frame is set for EventFrame and EventMonitored, Monitored only for
// EventMonitored, Resync only for EventSyncFound.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Frame     *Frame
	Monitored map[int]int
	Resync    *ResyncInfo
}

// Payload returns the 512 slot values of a frame event, nil otherwise
func (e Event) Payload() []byte {
	if e.Frame == nil {
		return nil
	}
	return e.Frame.Slots()
}

// Handler receives engine events. HandleEvent runs on the engine goroutine,
// in frame arrival order, and must not block for long.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(Event)

// HandleEvent calls f(e)
func (f HandlerFunc) HandleEvent(e Event) {
	f(e)
}

// MultiHandler delivers each event to every handler in order
type MultiHandler []Handler

// HandleEvent implements Handler
func (m MultiHandler) HandleEvent(e Event) {
	for _, h := range m {
		if h != nil {
			h.HandleEvent(e)
		}
	}
}

// NopHandler discards all events
type NopHandler struct{}

// HandleEvent implements Handler
func (NopHandler) HandleEvent(Event) {}
