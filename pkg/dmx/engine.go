// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the engine's synchronization state
type State int32

const (
	StateSynced State = iota
	StateLost
)

func (s State) String() string {
	switch s {
	case StateSynced:
		return "SYNCED"
	case StateLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithMonitored sets the slot addresses reported with EventMonitored
func WithMonitored(addrs ...int) Option {
	return func(e *Engine) {
		e.monitored = append(e.monitored, addrs...)
	}
}

// WithHandler adds an event handler. Handlers from repeated options are
// called in the order they were given. Defaults to NopHandler.
func WithHandler(h Handler) Option {
	return func(e *Engine) {
		if h != nil {
			e.handlers = append(e.handlers, h)
		}
	}
}

// WithLogger sets the engine's logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithResyncOnStart makes Run acquire sync before reading the first frame
func WithResyncOnStart(enabled bool) Option {
	return func(e *Engine) {
		e.resyncOnStart = enabled
	}
}

// Engine reads candidate frames from a Transport, validates their break
// marker and resynchronizes when validation fails.
//
// An Engine owns its Transport: nothing else may read from it or change its
// mode while Run is active.
type Engine struct {
	transport Transport
	assembler *Assembler
	decoder   *Decoder
	handler   Handler
	handlers  MultiHandler
	log       *zap.Logger

	monitored     []int
	resyncOnStart bool

	state   atomic.Int32
	seq     uint64
	chunk   []byte
	scratch []byte
}

// NewEngine creates an engine reading from t
func NewEngine(t Transport, opts ...Option) (*Engine, error) {
	e := &Engine{
		transport: t,
		assembler: NewAssembler(t),
		log:       zap.NewNop(),
		chunk:     make([]byte, resyncChunkSize),
		scratch:   make([]byte, resyncCompensate),
	}
	for _, opt := range opts {
		opt(e)
	}

	dec, err := NewDecoder(e.monitored)
	if err != nil {
		return nil, err
	}
	e.decoder = dec
	switch len(e.handlers) {
	case 0:
		e.handler = NopHandler{}
	case 1:
		e.handler = e.handlers[0]
	default:
		e.handler = e.handlers
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	e.state.Store(int32(StateSynced))

	return e, nil
}

// State returns the current synchronization state. Safe for concurrent use.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Monitored returns the slot addresses reported on every frame
func (e *Engine) Monitored() []int {
	return e.decoder.Monitored()
}

// Run assembles and delivers frames until ctx is cancelled or a transport or
// invariant error occurs. Blocking reads are not interrupted by ctx; close the
// transport to unwind a blocked Run.
func (e *Engine) Run(ctx context.Context) error {
	if e.resyncOnStart {
		e.state.Store(int32(StateLost))
		if err := e.resync(ctx); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.step(ctx); err != nil {
			return err
		}
	}
}

// step handles one candidate frame
func (e *Engine) step(ctx context.Context) error {
	raw, ok, err := e.assembler.Assemble(FrameSize)
	if err != nil {
		return err
	}

	if !ok {
		e.loseSync(raw)
		return e.resync(ctx)
	}

	e.deliver(raw)
	return nil
}

func (e *Engine) loseSync(raw []byte) {
	if State(e.state.Swap(int32(StateLost))) == StateLost {
		return
	}
	e.log.Warn("sync lost",
		zap.Uint64("after_frame", e.seq),
		zap.Binary("trailer", raw[FrameSize-MarkerSize:]))
	e.handler.HandleEvent(Event{Kind: EventSyncLost, Time: time.Now()})
}

// resync realigns the stream on a clean BREAK marker
func (e *Engine) resync(ctx context.Context) (err error) {
	started := time.Now()
	info := &ResyncInfo{}

	if err := e.transport.SetStrip(true); err != nil {
		return fmt.Errorf("dmx: enable strip mode: %w", err)
	}
	defer func() {
		if err != nil {
			// leave the line in mark mode for whoever opens it next
			_ = e.transport.SetStrip(false)
		}
	}()

	if err := e.transport.ResetInputBuffer(); err != nil {
		return fmt.Errorf("dmx: reset input buffer: %w", err)
	}
	e.assembler.Reset()

	var tail int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(e.transport, e.chunk); err != nil {
			return fmt.Errorf("dmx: resync read: %w", err)
		}
		info.Chunks++
		info.Discarded += len(e.chunk)

		parts := bytes.Split(e.chunk, []byte{MarkByte})
		if len(parts) == 2 {
			tail = len(parts[1])
			break
		}
		e.log.Debug("resync chunk rejected", zap.Int("parts", len(parts)), zap.Int("chunk", info.Chunks))
	}

	compensate := e.scratch[:resyncCompensate-tail]
	if _, err := io.ReadFull(e.transport, compensate); err != nil {
		return fmt.Errorf("dmx: resync compensate read: %w", err)
	}
	info.Discarded += len(compensate)

	aligned := e.scratch[:resyncAlignedRead]
	if _, err := io.ReadFull(e.transport, aligned); err != nil {
		return fmt.Errorf("dmx: resync aligned read: %w", err)
	}
	info.Discarded += len(aligned)

	if err := e.transport.SetStrip(false); err != nil {
		return fmt.Errorf("dmx: disable strip mode: %w", err)
	}

	info.Duration = time.Since(started)
	e.state.Store(int32(StateSynced))
	e.log.Info("sync found",
		zap.Int("chunks", info.Chunks),
		zap.Int("discarded", info.Discarded),
		zap.Duration("took", info.Duration))
	e.handler.HandleEvent(Event{Kind: EventSyncFound, Time: time.Now(), Resync: info})

	return nil
}

func (e *Engine) deliver(raw []byte) {
	payload, monitored := e.decoder.Decode(raw)

	e.seq++
	frame := &Frame{
		seq:       e.seq,
		startCode: raw[0],
		slots:     payload,
		timestamp: time.Now(),
	}

	e.handler.HandleEvent(Event{Kind: EventFrame, Time: frame.timestamp, Frame: frame})
	if monitored != nil {
		e.handler.HandleEvent(Event{Kind: EventMonitored, Time: frame.timestamp, Frame: frame, Monitored: monitored})
	}
}
