// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the scrape handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DMXMetrics exports engine events. It implements dmx.Handler.
type DMXMetrics struct {
	FramesTotal     *prometheus.CounterVec // labels: start_code
	SyncLostTotal   prometheus.Counter
	SyncFoundTotal  prometheus.Counter
	Synced          prometheus.Gauge
	ResyncDiscarded prometheus.Counter
	ResyncChunks    prometheus.Histogram
	SlotValue       *prometheus.GaugeVec // labels: slot (monitored slots only)
}

var _ dmx.Handler = (*DMXMetrics)(nil)

// NewDMXMetrics registers and returns the DMX metrics
func NewDMXMetrics(reg *prometheus.Registry) *DMXMetrics {
	m := &DMXMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmx_frames_total",
			Help: "Validated DMX frames by start code.",
		}, []string{"start_code"}),
		SyncLostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmx_sync_lost_total",
			Help: "Transitions from synced to lost.",
		}),
		SyncFoundTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmx_sync_found_total",
			Help: "Completed resynchronizations.",
		}),
		Synced: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmx_synced",
			Help: "1 while the receiver is aligned on frame boundaries.",
		}),
		ResyncDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmx_resync_discarded_bytes_total",
			Help: "Bytes consumed while resynchronizing.",
		}),
		ResyncChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dmx_resync_chunks",
			Help:    "Chunks scanned per resynchronization.",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		SlotValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dmx_slot_value",
			Help: "Latest value of each monitored slot.",
		}, []string{"slot"}),
	}
	reg.MustRegister(m.FramesTotal, m.SyncLostTotal, m.SyncFoundTotal, m.Synced,
		m.ResyncDiscarded, m.ResyncChunks, m.SlotValue)
	m.Synced.Set(1)
	return m
}

// HandleEvent implements dmx.Handler
func (m *DMXMetrics) HandleEvent(e dmx.Event) {
	switch e.Kind {
	case dmx.EventSyncLost:
		m.SyncLostTotal.Inc()
		m.Synced.Set(0)

	case dmx.EventSyncFound:
		m.SyncFoundTotal.Inc()
		m.Synced.Set(1)
		if e.Resync != nil {
			m.ResyncDiscarded.Add(float64(e.Resync.Discarded))
			m.ResyncChunks.Observe(float64(e.Resync.Chunks))
		}

	case dmx.EventFrame:
		label := "unknown"
		if e.Frame != nil {
			label = dmx.FormatStartCode(e.Frame.StartCode())
		}
		m.FramesTotal.WithLabelValues(label).Inc()

	case dmx.EventMonitored:
		for addr, v := range e.Monitored {
			m.SlotValue.WithLabelValues(strconv.Itoa(addr)).Set(float64(v))
		}
	}
}
