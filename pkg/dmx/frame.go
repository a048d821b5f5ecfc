// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import "time"

// Frame represents one decoded DMX universe
type Frame struct {
	seq       uint64
	startCode uint8
	slots     []byte
	timestamp time.Time
}

// NewFrame creates a frame from a start code and slot values.
// Slots are copied; shorter inputs are zero padded to SlotCount.
func NewFrame(startCode uint8, slots []byte) *Frame {
	f := &Frame{
		startCode: startCode,
		slots:     make([]byte, SlotCount),
		timestamp: time.Now(),
	}
	copy(f.slots, slots)
	return f
}

// RestoreFrame rebuilds a frame received from another process, keeping its
// sequence number and timestamp
func RestoreFrame(seq uint64, startCode uint8, slots []byte, timestamp time.Time) *Frame {
	f := NewFrame(startCode, slots)
	f.seq = seq
	f.timestamp = timestamp
	return f
}

// Seq returns the frame's sequence number within the run (1-based)
func (f *Frame) Seq() uint64 {
	return f.seq
}

// StartCode returns the frame's start code
func (f *Frame) StartCode() uint8 {
	return f.startCode
}

// Slots returns all 512 slot values
func (f *Frame) Slots() []byte {
	return f.slots
}

// Slot returns the value of slot i (0-511), or 0 when i is out of range
func (f *Frame) Slot(i int) uint8 {
	if i < 0 || i >= len(f.slots) {
		return 0
	}
	return f.slots[i]
}

// Timestamp returns the frame's decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Bytes returns the frame in wire order (start code, slots, marker), without
// escape doubling
func (f *Frame) Bytes() []byte {
	b := make([]byte, 0, FrameSize)
	b = append(b, f.startCode)
	b = append(b, f.slots...)
	return append(b, Marker[:]...)
}
