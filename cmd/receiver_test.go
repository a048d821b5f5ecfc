// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Thermoquad/dmxstat/internal/config"
	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmx/dmxtest"
)

// ============================================================
// Engine Wiring Tests
// ============================================================

func TestEngineOptions_LogsSyncTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	line := dmxtest.NewLine()
	line.Frame(0x00, nil)
	line.CorruptFrame(0x00, nil, []byte{0xFF, 0x00, 0x01})
	for i := 0; i < 4; i++ {
		line.Frame(0x00, nil)
	}

	var frames int
	counter := dmx.HandlerFunc(func(e dmx.Event) {
		if e.Kind == dmx.EventFrame {
			frames++
		}
	})

	engine, err := dmx.NewEngine(line, engineOptions(&config.Config{}, zap.New(core), counter)...)
	require.NoError(t, err)
	require.Error(t, engine.Run(context.Background()))

	lost := logs.FilterMessage("SYNC LOST").All()
	require.Len(t, lost, 1)
	assert.Equal(t, "frames", lost[0].LoggerName)
	assert.Equal(t, 1, logs.FilterMessage("SYNC FOUND").Len())
	assert.Equal(t, 2, frames, "handlers still run after the log handler")
}

func TestReceiverOptions_DoNotAccumulate(t *testing.T) {
	r := &receiver{cfg: &config.Config{}, log: zap.NewNop()}

	base := len(r.options(false))
	for i := 0; i < 10; i++ {
		assert.Len(t, r.options(true), base)
	}
}

func TestReceiverOptions_ResyncOnStart(t *testing.T) {
	var kinds []dmx.EventKind
	r := &receiver{cfg: &config.Config{}, log: zap.NewNop()}
	r.addHandlers(dmx.HandlerFunc(func(e dmx.Event) { kinds = append(kinds, e.Kind) }))

	line := dmxtest.NewLine()
	line.Data(0x01, 0x02, 0x03)
	line.Break()
	for i := 0; i < 3; i++ {
		line.Frame(0x00, nil)
	}

	engine, err := dmx.NewEngine(line, r.options(true)...)
	require.NoError(t, err)
	require.Error(t, engine.Run(context.Background()))

	require.NotEmpty(t, kinds)
	assert.Equal(t, dmx.EventSyncFound, kinds[0])
}

// ============================================================
// Text Monitor Tests
// ============================================================

func TestTextMonitor_DrainsQueuedEvents(t *testing.T) {
	events := make(chan dmx.Event, 8)
	events <- dmx.Event{Kind: dmx.EventFrame, Time: time.Now(), Frame: dmx.NewFrame(0x00, nil)}
	events <- dmx.Event{Kind: dmx.EventSyncLost, Time: time.Now()}

	tm := &textMonitor{stats: dmx.NewStatistics()}
	captureStdout(t, func() {
		tm.drain(events)
	})

	assert.Empty(t, events)
	assert.Equal(t, uint64(1), tm.stats.TotalFrames)
	assert.Equal(t, uint64(1), tm.stats.SyncLosses)
}
