// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx_test

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmx/dmxtest"
)

// ============================================================
// Engine Test Helpers
// ============================================================

// collector records every event in arrival order
type collector struct {
	events []dmx.Event
}

func (c *collector) HandleEvent(e dmx.Event) {
	c.events = append(c.events, e)
}

func (c *collector) kinds() []dmx.EventKind {
	kinds := make([]dmx.EventKind, 0, len(c.events))
	for _, e := range c.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (c *collector) count(k dmx.EventKind) int {
	n := 0
	for _, e := range c.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func (c *collector) payloads() [][]byte {
	var out [][]byte
	for _, e := range c.events {
		if e.Kind == dmx.EventFrame {
			out = append(out, e.Payload())
		}
	}
	return out
}

// runToEOF runs the engine until the simulated line is drained
func runToEOF(t *testing.T, line *dmxtest.Line, opts ...dmx.Option) *collector {
	t.Helper()
	c := &collector{}
	opts = append(opts, dmx.WithHandler(c))
	engine, err := dmx.NewEngine(line, opts...)
	require.NoError(t, err)

	err = engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF),
		"run should end on a drained line, got %v", err)
	return c
}

// ============================================================
// Engine Tests
// ============================================================

func TestEngine_CleanFrames(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	line := dmxtest.NewLine()
	var want [][]byte
	for i := 0; i < 10; i++ {
		slots := dmxtest.RandomSlots(rng, false)
		want = append(want, slots)
		line.Frame(0x00, slots)
	}

	c := runToEOF(t, line)
	assert.Equal(t, 10, c.count(dmx.EventFrame))
	assert.Equal(t, 0, c.count(dmx.EventSyncLost))
	assert.Equal(t, 0, c.count(dmx.EventSyncFound))
	assert.Equal(t, 0, c.count(dmx.EventMonitored), "no monitored set, no monitored events")
	assert.Equal(t, want, c.payloads())
	assert.Equal(t, 0, line.StripToggles())
}

func TestEngine_MarkByteRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	line := dmxtest.NewLine()
	var want [][]byte
	for i := 0; i < 8; i++ {
		slots := dmxtest.RandomSlots(rng, true)
		slots[rng.Intn(dmx.SlotCount)] = 0xFF
		want = append(want, slots)
		line.Frame(0x00, slots)
	}

	c := runToEOF(t, line)
	assert.Equal(t, 0, c.count(dmx.EventSyncLost))
	assert.Equal(t, want, c.payloads())
}

func TestEngine_SplitPairAcrossReads(t *testing.T) {
	line := dmxtest.NewLine()
	slots := make([]byte, dmx.SlotCount)
	slots[dmx.SlotCount-1] = 0xFF
	slots[200] = 0xFF
	line.Frame(0x00, slots)
	line.Frame(0x00, slots)
	// every read returns a single byte at most: pairs are always split
	line.SetReadChunks(1)

	c := runToEOF(t, line)
	assert.Equal(t, [][]byte{slots, slots}, c.payloads())
	assert.Equal(t, 0, c.count(dmx.EventSyncLost))
}

func TestEngine_CorruptedMarkerBracketedBySyncEvents(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	line := dmxtest.NewLine()

	var clean [][]byte
	for i := 0; i < 3; i++ {
		slots := dmxtest.RandomSlots(rng, true)
		clean = append(clean, slots)
		line.Frame(0x00, slots)
	}
	line.CorruptFrame(0x00, dmxtest.RandomSlots(rng, true), []byte{0xFF, 0x00, 0x01})
	var after [][]byte
	for i := 0; i < 6; i++ {
		slots := dmxtest.RandomSlots(rng, true)
		after = append(after, slots)
		line.Frame(0x00, slots)
	}

	c := runToEOF(t, line)

	assert.Equal(t, 1, c.count(dmx.EventSyncLost))
	assert.Equal(t, 1, c.count(dmx.EventSyncFound))
	assert.Equal(t, []dmx.EventKind{
		dmx.EventFrame, dmx.EventFrame, dmx.EventFrame,
		dmx.EventSyncLost, dmx.EventSyncFound,
		dmx.EventFrame, dmx.EventFrame, dmx.EventFrame,
	}, c.kinds())

	// the first frame after the corrupted one is the boundary chunk, the next
	// two are consumed while realigning
	payloads := c.payloads()
	assert.Equal(t, clean, payloads[:3])
	assert.Equal(t, after[3:], payloads[3:])

	found := c.events[4]
	require.NotNil(t, found.Resync)
	assert.Equal(t, 1, found.Resync.Chunks)
	assert.Equal(t, 3*dmx.FrameSize, found.Resync.Discarded)

	assert.False(t, line.Strip(), "line must be back in mark mode")
	assert.Equal(t, 1, line.Resets())
	assert.Equal(t, 2, line.StripToggles())
}

func TestEngine_MonitoredAddresses(t *testing.T) {
	line := dmxtest.NewLine()
	line.Frame(0x00, dmxtest.RampSlots())
	line.Frame(0x00, dmxtest.RampSlots())

	c := runToEOF(t, line, dmx.WithMonitored(1, 511))

	var monitored []map[int]int
	for _, e := range c.events {
		if e.Kind == dmx.EventMonitored {
			monitored = append(monitored, e.Monitored)
			require.NotNil(t, e.Frame)
		}
	}
	require.Len(t, monitored, 2)
	for _, m := range monitored {
		assert.Equal(t, map[int]int{1: 1, 511: 511 % 256}, m)
	}

	// frame first, then its monitored values
	assert.Equal(t, []dmx.EventKind{
		dmx.EventFrame, dmx.EventMonitored,
		dmx.EventFrame, dmx.EventMonitored,
	}, c.kinds())
}

func TestEngine_ResyncConvergesFromNoise(t *testing.T) {
	for _, p := range []int{0, 1, 100, 515, 516, 517, 1000, 2047} {
		rng := rand.New(rand.NewSource(int64(p)))
		line := dmxtest.NewLine()
		line.Data(dmxtest.Noise(rng, p)...)
		line.Break()

		var frames [][]byte
		for i := 0; i < 5; i++ {
			slots := dmxtest.RandomSlots(rng, true)
			frames = append(frames, slots)
			line.Frame(0x00, slots)
		}

		c := runToEOF(t, line, dmx.WithResyncOnStart(true))

		require.NotEmpty(t, c.events, "offset %d", p)
		assert.Equal(t, dmx.EventSyncFound, c.events[0].Kind, "offset %d", p)
		assert.Equal(t, 0, c.count(dmx.EventSyncLost), "offset %d", p)

		// frames[0] straddles the boundary chunk, frames[1] is the aligned read
		assert.Equal(t, frames[2:], c.payloads(), "offset %d", p)
	}
}

func TestEngine_NoiseBeforeFirstFrameLosesSync(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	line := dmxtest.NewLine()
	line.Data(dmxtest.Noise(rng, 1000)...)
	line.Break()
	var frames [][]byte
	for i := 0; i < 5; i++ {
		slots := dmxtest.RandomSlots(rng, false)
		frames = append(frames, slots)
		line.Frame(0x00, slots)
	}

	c := runToEOF(t, line)

	require.GreaterOrEqual(t, len(c.events), 2)
	assert.Equal(t, dmx.EventSyncLost, c.events[0].Kind)
	assert.Equal(t, dmx.EventSyncFound, c.events[1].Kind)
	assert.Equal(t, frames[2:], c.payloads())
}

func TestEngine_StateTransitions(t *testing.T) {
	line := dmxtest.NewLine()
	line.CorruptFrame(0x00, nil, []byte{0xFF, 0x00, 0x01})
	line.Frame(0x00, nil)
	line.Frame(0x00, nil)
	line.Frame(0x00, nil)
	line.Frame(0x00, nil)

	var states []dmx.State
	var engine *dmx.Engine
	h := dmx.HandlerFunc(func(e dmx.Event) {
		states = append(states, engine.State())
	})

	engine, err := dmx.NewEngine(line, dmx.WithHandler(h))
	require.NoError(t, err)
	assert.Equal(t, dmx.StateSynced, engine.State())

	_ = engine.Run(context.Background())
	assert.Equal(t, []dmx.State{dmx.StateLost, dmx.StateSynced, dmx.StateSynced}, states)
}

func TestEngine_CancelledContext(t *testing.T) {
	line := dmxtest.NewLine()
	line.Frame(0x00, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine, err := dmx.NewEngine(line)
	require.NoError(t, err)
	err = engine.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, line.BytesRead())
}

func TestEngine_HandlersRunInOrder(t *testing.T) {
	line := dmxtest.NewLine()
	line.Frame(0x00, nil)
	line.Frame(0x00, nil)

	var order []string
	first := dmx.HandlerFunc(func(e dmx.Event) { order = append(order, "first") })
	second := dmx.HandlerFunc(func(e dmx.Event) { order = append(order, "second") })

	c := runToEOF(t, line, dmx.WithHandler(first), dmx.WithHandler(nil), dmx.WithHandler(second))

	assert.Equal(t, 2, c.count(dmx.EventFrame))
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestEngine_InvalidMonitoredAddress(t *testing.T) {
	_, err := dmx.NewEngine(dmxtest.NewLine(), dmx.WithMonitored(1, 512))
	assert.True(t, errors.Is(err, dmx.ErrInvalidAddress))

	_, err = dmx.NewEngine(dmxtest.NewLine(), dmx.WithMonitored(-1))
	assert.True(t, errors.Is(err, dmx.ErrInvalidAddress))
}

// stripFailLine fails every attempt to enable strip mode
type stripFailLine struct {
	*dmxtest.Line
}

var errStrip = errors.New("tcsetattr failed")

func (s stripFailLine) SetStrip(strip bool) error {
	if strip {
		return errStrip
	}
	return s.Line.SetStrip(strip)
}

func TestEngine_StripModeErrorIsFatal(t *testing.T) {
	line := dmxtest.NewLine()
	line.CorruptFrame(0x00, nil, []byte{0x00, 0x00, 0x00})
	line.Frame(0x00, nil)

	c := &collector{}
	engine, err := dmx.NewEngine(stripFailLine{line}, dmx.WithHandler(c))
	require.NoError(t, err)

	err = engine.Run(context.Background())
	assert.True(t, errors.Is(err, errStrip))
	assert.Equal(t, []dmx.EventKind{dmx.EventSyncLost}, c.kinds())
	assert.Equal(t, dmx.StateLost, engine.State())
}

func TestEngine_ResyncReadErrorRestoresMarkMode(t *testing.T) {
	// corrupted frame followed by too little data to find a boundary
	line := dmxtest.NewLine()
	line.CorruptFrame(0x00, nil, []byte{0x00, 0x00, 0x00})
	line.Data(make([]byte, 100)...)

	c := &collector{}
	engine, err := dmx.NewEngine(line, dmx.WithHandler(c))
	require.NoError(t, err)

	err = engine.Run(context.Background())
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, line.Strip())
	assert.Equal(t, 1, c.count(dmx.EventSyncLost))
	assert.Equal(t, 0, c.count(dmx.EventSyncFound))
}
