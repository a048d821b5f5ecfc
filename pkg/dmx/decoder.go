// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import (
	"errors"
	"fmt"
)

// ErrInvalidAddress is returned for monitored slot addresses outside 0-511
var ErrInvalidAddress = errors.New("dmx: invalid slot address")

// Decoder extracts the slot payload and the monitored slots from a valid
// candidate frame
type Decoder struct {
	monitored []int
}

// NewDecoder creates a decoder reporting the given slot addresses on every
// frame. Duplicates are dropped, order is kept.
func NewDecoder(addrs []int) (*Decoder, error) {
	seen := make(map[int]bool, len(addrs))
	monitored := make([]int, 0, len(addrs))
	for _, a := range addrs {
		if a < 0 || a >= SlotCount {
			return nil, fmt.Errorf("%w: %d (valid 0-%d)", ErrInvalidAddress, a, SlotCount-1)
		}
		if seen[a] {
			continue
		}
		seen[a] = true
		monitored = append(monitored, a)
	}
	return &Decoder{monitored: monitored}, nil
}

// Monitored returns the configured slot addresses
func (d *Decoder) Monitored() []int {
	return d.monitored
}

// Decode returns a copy of the 512 slot values and, when addresses are
// monitored, their values keyed by slot address. frame must be FrameSize
// bytes long.
func (d *Decoder) Decode(frame []byte) (payload []byte, monitored map[int]int) {
	payload = make([]byte, SlotCount)
	copy(payload, frame[1:1+SlotCount])

	if len(d.monitored) == 0 {
		return payload, nil
	}

	monitored = make(map[int]int, len(d.monitored))
	for _, a := range d.monitored {
		monitored[a] = int(frame[a+1])
	}
	return payload, monitored
}
