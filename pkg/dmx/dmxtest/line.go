// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dmxtest provides a simulated DMX receive line for exercising the
// dmx engine without hardware.
//
// A Line holds a queue of wire symbols (data bytes, BREAK conditions and raw
// pre-rendered bytes). Symbols are rendered lazily, at read time, the way a
// serial line discipline with PARMRK would deliver them: in mark mode a BREAK
// becomes FF 00 00 and a data FF becomes FF FF; in strip mode data bytes lose
// bit 7 and BREAK still becomes FF 00 00.
package dmxtest

import (
	"io"
	"math/rand"
	"sync"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

type symbolKind int

const (
	symData symbolKind = iota
	symBreak
	symRaw
)

type symbol struct {
	kind symbolKind
	b    byte
}

// Line is an in-memory dmx.Transport
type Line struct {
	mu       sync.Mutex
	queue    []symbol
	rendered []byte
	strip    bool
	closed   bool

	chunks   []int
	chunkIdx int

	resets       int
	stripToggles int
	bytesRead    int
}

var _ dmx.Transport = (*Line)(nil)

// NewLine creates an empty line in mark mode
func NewLine() *Line {
	return &Line{}
}

// Data queues data bytes as they appear on the wire
func (l *Line) Data(b ...byte) *Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, v := range b {
		l.queue = append(l.queue, symbol{kind: symData, b: v})
	}
	return l
}

// Break queues a BREAK condition
func (l *Line) Break() *Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, symbol{kind: symBreak})
	return l
}

// Raw queues bytes delivered verbatim in every mode. Use it to model a
// corrupted marker.
func (l *Line) Raw(b ...byte) *Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, v := range b {
		l.queue = append(l.queue, symbol{kind: symRaw, b: v})
	}
	return l
}

// Frame queues one universe: start code, slots, then the BREAK that ends it.
// slots shorter than dmx.SlotCount are zero padded.
func (l *Line) Frame(startCode byte, slots []byte) *Line {
	l.Data(startCode)
	l.Data(padSlots(slots)...)
	return l.Break()
}

// CorruptFrame queues a universe whose trailing marker is replaced by marker
func (l *Line) CorruptFrame(startCode byte, slots []byte, marker []byte) *Line {
	l.Data(startCode)
	l.Data(padSlots(slots)...)
	return l.Raw(marker...)
}

// SetReadChunks limits successive Read calls to the given sizes, cycling
// through them. No sizes means reads are only limited by len(p).
func (l *Line) SetReadChunks(sizes ...int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks = sizes
	l.chunkIdx = 0
}

// Read implements io.Reader. It returns io.EOF once the queue is drained.
func (l *Line) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}

	want := len(p)
	if len(l.chunks) > 0 {
		c := l.chunks[l.chunkIdx%len(l.chunks)]
		l.chunkIdx++
		if c > 0 && c < want {
			want = c
		}
	}

	for len(l.rendered) < want && len(l.queue) > 0 {
		l.renderOne()
	}
	if len(l.rendered) == 0 {
		return 0, io.EOF
	}

	n := copy(p[:want], l.rendered)
	l.rendered = l.rendered[n:]
	l.bytesRead += n
	return n, nil
}

// ResetInputBuffer drops bytes already rendered but not yet read
func (l *Line) ResetInputBuffer() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rendered = nil
	l.resets++
	return nil
}

// SetStrip switches between mark mode and strip mode
func (l *Line) SetStrip(strip bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.strip != strip {
		l.stripToggles++
	}
	l.strip = strip
	return nil
}

// Close makes further reads fail
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Strip reports whether the line is in strip mode
func (l *Line) Strip() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.strip
}

// Resets returns how many times the input buffer was reset
func (l *Line) Resets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}

// StripToggles returns how many times the strip mode changed
func (l *Line) StripToggles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stripToggles
}

// BytesRead returns the number of rendered bytes handed to readers
func (l *Line) BytesRead() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bytesRead
}

// Remaining returns the number of wire symbols not rendered yet
func (l *Line) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Line) renderOne() {
	s := l.queue[0]
	l.queue = l.queue[1:]

	switch s.kind {
	case symBreak:
		l.rendered = append(l.rendered, dmx.Marker[:]...)
	case symRaw:
		l.rendered = append(l.rendered, s.b)
	case symData:
		if l.strip {
			l.rendered = append(l.rendered, s.b&0x7F)
		} else if s.b == dmx.MarkByte {
			l.rendered = append(l.rendered, dmx.MarkByte, dmx.MarkByte)
		} else {
			l.rendered = append(l.rendered, s.b)
		}
	}
}

func padSlots(slots []byte) []byte {
	if len(slots) >= dmx.SlotCount {
		return slots[:dmx.SlotCount]
	}
	padded := make([]byte, dmx.SlotCount)
	copy(padded, slots)
	return padded
}

// RandomSlots returns 512 random slot values. When allowMark is false the
// value FF is never produced.
func RandomSlots(rng *rand.Rand, allowMark bool) []byte {
	slots := make([]byte, dmx.SlotCount)
	for i := range slots {
		v := byte(rng.Intn(256))
		if !allowMark && v == dmx.MarkByte {
			v = 0xFE
		}
		slots[i] = v
	}
	return slots
}

// RampSlots returns slots where slot i holds i mod 256
func RampSlots() []byte {
	slots := make([]byte, dmx.SlotCount)
	for i := range slots {
		slots[i] = byte(i % 256)
	}
	return slots
}

// Noise returns n random bytes that never contain FF
func Noise(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.Intn(255))
	}
	return b
}
