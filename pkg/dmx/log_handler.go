// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LogHandler is the default consumer: it logs sync transitions and, at debug
// level, a throttled summary of received frames and monitored values.
type LogHandler struct {
	log       *zap.Logger
	frames    *rate.Limiter
	monitored *rate.Limiter
	dropped   uint64
}

// NewLogHandler creates a LogHandler logging at most framesPerSec frame lines
// and framesPerSec monitored-value lines per second. framesPerSec <= 0 defaults to 1.
func NewLogHandler(log *zap.Logger, framesPerSec float64) *LogHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if framesPerSec <= 0 {
		framesPerSec = 1
	}
	return &LogHandler{
		log:       log,
		frames:    rate.NewLimiter(rate.Limit(framesPerSec), 1),
		monitored: rate.NewLimiter(rate.Limit(framesPerSec), 1),
	}
}

// HandleEvent implements Handler
func (h *LogHandler) HandleEvent(e Event) {
	switch e.Kind {
	case EventSyncLost:
		h.log.Warn("SYNC LOST")

	case EventSyncFound:
		fields := []zap.Field{}
		if e.Resync != nil {
			fields = append(fields,
				zap.Int("chunks", e.Resync.Chunks),
				zap.Int("discarded", e.Resync.Discarded),
				zap.Duration("took", e.Resync.Duration.Round(time.Millisecond)))
		}
		h.log.Info("SYNC FOUND", fields...)

	case EventFrame:
		if e.Frame == nil || !h.log.Core().Enabled(zap.DebugLevel) {
			return
		}
		if !h.frames.Allow() {
			h.dropped++
			return
		}
		h.log.Debug("FULL DMX512 FRAME RECEIVED",
			zap.Uint64("seq", e.Frame.Seq()),
			zap.Uint8("start_code", e.Frame.StartCode()),
			zap.Int("active_slots", ActiveSlots(e.Frame.Slots())),
			zap.Uint64("suppressed", h.dropped))
		h.dropped = 0

	case EventMonitored:
		if !h.monitored.Allow() {
			return
		}
		h.log.Debug("VALID MONITORED DATA", zap.String("values", FormatMonitored(e.Monitored)))
	}
}
