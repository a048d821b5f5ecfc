// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx_test

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmx/dmxtest"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 200
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 200
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomChunks returns a read schedule of 1 to 8 sizes between 1 and 600
func randomChunks(rng *rand.Rand) []int {
	sizes := make([]int, 1+rng.Intn(8))
	for i := range sizes {
		sizes[i] = 1 + rng.Intn(600)
	}
	return sizes
}

// randomCorruptMarker returns a 3 byte trailer that is not a BREAK marker.
// An FF may only lead, followed by bytes that cannot pair with it.
func randomCorruptMarker(rng *rand.Rand) []byte {
	nonMark := func() byte { return byte(rng.Intn(255)) }
	for {
		m := []byte{nonMark(), nonMark(), nonMark()}
		if rng.Intn(2) == 0 {
			m[0] = dmx.MarkByte
		}
		if !bytes.Equal(m, dmx.Marker[:]) {
			return m
		}
	}
}

// isSubsequence reports whether every element of got appears in want, in order
func isSubsequence(got, want [][]byte) bool {
	j := 0
	for _, g := range got {
		for j < len(want) && !bytes.Equal(g, want[j]) {
			j++
		}
		if j == len(want) {
			return false
		}
		j++
	}
	return true
}

func frameEvents(c *collector) [][]byte {
	var out [][]byte
	for _, e := range c.events {
		if e.Kind == dmx.EventFrame {
			out = append(out, e.Frame.Bytes())
		}
	}
	return out
}

// ============================================================
// Assembler Fuzz Tests
// ============================================================

func TestFuzz_AssemblerRandomChunking(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		var want [][]byte
		var stream []byte
		for i := 0; i < 1+rng.Intn(4); i++ {
			slots := dmxtest.RandomSlots(rng, true)
			for j := 0; j < rng.Intn(64); j++ {
				slots[rng.Intn(dmx.SlotCount)] = dmx.MarkByte
			}
			frame := frameBytes(byte(rng.Intn(256)), slots)
			want = append(want, frame)
			stream = append(stream, escape(frame)...)
		}

		a := dmx.NewAssembler(&chunkReader{data: stream, sizes: randomChunks(rng)})
		for i, w := range want {
			got, ok, err := a.Assemble(dmx.FrameSize)
			require.NoError(t, err, "round %d frame %d", round, i)
			require.True(t, ok, "round %d frame %d", round, i)
			require.Equal(t, w, got, "round %d frame %d", round, i)
		}
	}
}

// ============================================================
// Engine Fuzz Tests
// ============================================================

func TestFuzz_EngineCleanStream(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds() / 10
	if rounds == 0 {
		rounds = 1
	}

	for round := 0; round < rounds; round++ {
		line := dmxtest.NewLine()
		var want [][]byte
		for i := 0; i < 2+rng.Intn(6); i++ {
			sc := byte(rng.Intn(256))
			slots := dmxtest.RandomSlots(rng, true)
			want = append(want, dmx.NewFrame(sc, slots).Bytes())
			line.Frame(sc, slots)
		}
		line.SetReadChunks(randomChunks(rng)...)

		c := runToEOF(t, line)
		require.Equal(t, 0, c.count(dmx.EventSyncLost), "round %d", round)
		require.Equal(t, want, frameEvents(c), "round %d", round)
	}
}

func TestFuzz_EngineResyncFromRandomOffset(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds() / 10
	if rounds == 0 {
		rounds = 1
	}

	for round := 0; round < rounds; round++ {
		p := rng.Intn(4 * dmx.FrameSize)
		line := dmxtest.NewLine()
		line.Data(dmxtest.Noise(rng, p)...)
		line.Break()

		var frames [][]byte
		for i := 0; i < 4; i++ {
			slots := dmxtest.RandomSlots(rng, true)
			frames = append(frames, slots)
			line.Frame(0x00, slots)
		}

		c := runToEOF(t, line, dmx.WithResyncOnStart(true))
		require.Equal(t, []dmx.EventKind{dmx.EventSyncFound, dmx.EventFrame, dmx.EventFrame},
			c.kinds(), "round %d offset %d", round, p)
		require.Equal(t, frames[2:], c.payloads(), "round %d offset %d", round, p)
	}
}

func TestFuzz_EngineCorruptedMarkers(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds() / 10
	if rounds == 0 {
		rounds = 1
	}

	for round := 0; round < rounds; round++ {
		line := dmxtest.NewLine()
		var clean [][]byte
		corrupted := 0
		for i := 0; i < 4+rng.Intn(16); i++ {
			sc := byte(rng.Intn(256))
			slots := dmxtest.RandomSlots(rng, true)
			if rng.Intn(4) == 0 {
				line.CorruptFrame(sc, slots, randomCorruptMarker(rng))
				corrupted++
				continue
			}
			clean = append(clean, dmx.NewFrame(sc, slots).Bytes())
			line.Frame(sc, slots)
		}
		line.SetReadChunks(randomChunks(rng)...)

		c := runToEOF(t, line)

		got := frameEvents(c)
		assert.True(t, isSubsequence(got, clean), "round %d: delivered frame not in input order", round)

		// every loss is answered by a find before any further frame
		for i, e := range c.events {
			if e.Kind != dmx.EventSyncLost || i == len(c.events)-1 {
				continue
			}
			assert.Equal(t, dmx.EventSyncFound, c.events[i+1].Kind, "round %d event %d", round, i)
		}
		losses, finds := c.count(dmx.EventSyncLost), c.count(dmx.EventSyncFound)
		assert.True(t, finds == losses || finds == losses-1, "round %d: %d lost, %d found", round, losses, finds)
		assert.LessOrEqual(t, losses, corrupted, "round %d", round)
		if corrupted == 0 {
			assert.Equal(t, clean, got, "round %d", round)
		}
		assert.False(t, line.Strip(), "round %d: line left in strip mode", round)
	}
}
