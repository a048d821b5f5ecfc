// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrFrameLength is returned when an assembled frame does not have the
// requested length. It means the transport or the assembler is broken and the
// run must not continue.
var ErrFrameLength = errors.New("dmx: assembled frame length mismatch")

// Assembler removes the FF FF escape doubling from the raw transport stream
// and cuts it into fixed-size candidate frames.
type Assembler struct {
	r io.Reader

	// carry is set when the last raw byte seen was an unpaired FF whose
	// partner has not been read yet
	carry bool

	// overflow holds de-stuffed bytes produced past the end of a request
	overflow []byte

	raw []byte
}

// NewAssembler creates an assembler reading from r
func NewAssembler(r io.Reader) *Assembler {
	return &Assembler{
		r:        r,
		overflow: make([]byte, 0, 2),
		raw:      make([]byte, FrameSize),
	}
}

// Reset drops carried state. Call it after the transport input was flushed.
func (a *Assembler) Reset() {
	a.carry = false
	a.overflow = a.overflow[:0]
}

// Assemble reads one candidate frame of exactly target bytes.
// trailingIsMarker reports whether the last MarkerSize bytes equal Marker.
func (a *Assembler) Assemble(target int) (frame []byte, trailingIsMarker bool, err error) {
	if target <= MarkerSize {
		return nil, false, fmt.Errorf("dmx: frame target %d too small", target)
	}

	frame = make([]byte, target)
	body := target - MarkerSize

	n, err := a.fill(frame[:body], false)
	if err != nil {
		return nil, false, err
	}

	// The marker is assembled on its own; a held FF that would complete it is
	// taken literally instead of waiting for a partner.
	m, err := a.fill(frame[body:], true)
	if err != nil {
		return nil, false, err
	}

	if n+m != target {
		return nil, false, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameLength, n+m, target)
	}

	return frame, bytes.Equal(frame[body:], Marker[:]), nil
}

// fill writes exactly len(dst) de-stuffed bytes into dst. Each raw read is
// sized so the output can grow by at most one byte per raw byte, which keeps
// the request from being overshot except when a carried FF has to be resolved.
func (a *Assembler) fill(dst []byte, flush bool) (int, error) {
	out := copy(dst, a.overflow)
	a.overflow = a.overflow[:copy(a.overflow, a.overflow[out:])]

	for out < len(dst) {
		held := 0
		if a.carry {
			held = 1
		}

		want := len(dst) - out - held
		if want == 0 {
			if flush {
				dst[out] = MarkByte
				out++
				a.carry = false
				break
			}
			want = 1
		}

		raw := a.raw[:want]
		if _, err := io.ReadFull(a.r, raw); err != nil {
			return out, fmt.Errorf("dmx: transport read: %w", err)
		}

		for _, b := range raw {
			if a.carry {
				a.carry = false
				out = a.put(dst, out, MarkByte)
				if b == MarkByte {
					// FF FF: escaped data byte
					continue
				}
				out = a.put(dst, out, b)
				continue
			}
			if b == MarkByte {
				a.carry = true
				continue
			}
			out = a.put(dst, out, b)
		}
	}

	return out, nil
}

func (a *Assembler) put(dst []byte, out int, b byte) int {
	if out < len(dst) {
		dst[out] = b
		return out + 1
	}
	a.overflow = append(a.overflow, b)
	return out
}
