// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import (
	"fmt"
	"time"
)

// Statistics tracks frame counts, sync losses and rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time
	LastFrameTime  time.Time

	// Counters
	TotalFrames      uint64
	DimmerFrames     uint64
	AlternateFrames  uint64
	RDMFrames        uint64
	TextFrames       uint64
	SyncLosses       uint64
	SyncFounds       uint64
	ResyncChunks     uint64
	ResyncDiscarded  uint64
	MonitoredUpdates uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	LossRate  float64 // sync losses/min
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics from an engine event
func (s *Statistics) Update(e Event) {
	switch e.Kind {
	case EventSyncLost:
		s.SyncLosses++

	case EventSyncFound:
		s.SyncFounds++
		if e.Resync != nil {
			s.ResyncChunks += uint64(e.Resync.Chunks)
			s.ResyncDiscarded += uint64(e.Resync.Discarded)
		}

	case EventFrame:
		s.TotalFrames++
		s.LastFrameTime = e.Time
		if e.Frame == nil {
			break
		}
		for _, v := range ValidateFrame(e.Frame) {
			switch v.Type {
			case AnomalyRDMStartCode:
				s.RDMFrames++
			case AnomalyTextStartCode:
				s.TextFrames++
			}
			s.AlternateFrames++
		}
		if e.Frame.StartCode() == StartCodeDimmer {
			s.DimmerFrames++
		}

	case EventMonitored:
		s.MonitoredUpdates++
	}

	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and sync loss rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.LossRate = float64(s.SyncLosses) * 60.0 / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var dimmerPercent, alternatePercent float64
	if s.TotalFrames > 0 {
		dimmerPercent = float64(s.DimmerFrames) * 100.0 / float64(s.TotalFrames)
		alternatePercent = float64(s.AlternateFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Dimmer Frames:   %8d (%.1f%%)\n", s.DimmerFrames, dimmerPercent)

	if s.AlternateFrames > 0 {
		result += fmt.Sprintf("Alt Start Code:  %8d (%.1f%%)\n", s.AlternateFrames, alternatePercent)
		if s.RDMFrames > 0 {
			result += fmt.Sprintf("  RDM:              %5d\n", s.RDMFrames)
		}
		if s.TextFrames > 0 {
			result += fmt.Sprintf("  Text:             %5d\n", s.TextFrames)
		}
	}
	if s.SyncLosses > 0 {
		result += fmt.Sprintf("Sync Lost:       %8d\n", s.SyncLosses)
		result += fmt.Sprintf("Sync Found:      %8d\n", s.SyncFounds)
		result += fmt.Sprintf("  Chunks Scanned:   %5d\n", s.ResyncChunks)
		result += fmt.Sprintf("  Bytes Discarded:  %5d\n", s.ResyncDiscarded)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Loss Rate:       %8.1f losses/min\n", s.LossRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
