// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmx/dmxtest"
)

func TestSelftest_Passes(t *testing.T) {
	for _, seed := range []int64{1, 2, 42} {
		selftestSeed = seed
		require.NoError(t, runSelftest(selftestCmd, nil), "seed %d", seed)
	}
	selftestSeed = 1
}

func TestCheckSelftest_ReportsFailures(t *testing.T) {
	line := dmxtest.NewLine()
	require.NoError(t, line.SetStrip(true))

	r := &selftestResult{stats: dmx.NewStatistics()}
	r.HandleEvent(dmx.Event{Kind: dmx.EventFrame, Frame: dmx.NewFrame(0x00, []byte{1})})

	failures := checkSelftest(r, [][]byte{make([]byte, dmx.SlotCount)}, line)
	assert.Len(t, failures, 4)
	assert.Contains(t, failures, "expected 1 sync loss, got 0")
	assert.Contains(t, failures, "frame 0 payload mismatch")
	assert.Contains(t, failures, "line left in strip mode")
}
