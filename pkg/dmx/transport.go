// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import "io"

// Transport is the byte channel the engine reads from.
//
// Read follows io.Reader semantics; the engine always reads with io.ReadFull
// so short reads are fine. SetStrip switches the line discipline between mark
// mode (false) and mark+strip mode (true). In strip mode data bytes lose their
// high bit, so the only FF left in the stream is the lead byte of a BREAK
// marker.
type Transport interface {
	io.Reader
	ResetInputBuffer() error
	SetStrip(strip bool) error
}
