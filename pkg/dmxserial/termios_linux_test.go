// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package dmxserial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestMarkModeIflag(t *testing.T) {
	in := uint32(unix.IGNBRK | unix.BRKINT | unix.ISTRIP | unix.IGNPAR | unix.IXON)
	out := markModeIflag(in)

	assert.NotZero(t, out&unix.PARMRK)
	assert.Zero(t, out&unix.IGNBRK)
	assert.Zero(t, out&unix.BRKINT)
	assert.Zero(t, out&unix.ISTRIP)
	assert.Zero(t, out&unix.IGNPAR)
	assert.NotZero(t, out&unix.IXON, "unrelated flags are preserved")
}

func TestStripIflag(t *testing.T) {
	base := markModeIflag(0)

	on := stripIflag(base, true)
	assert.NotZero(t, on&unix.ISTRIP)
	assert.NotZero(t, on&unix.PARMRK)

	off := stripIflag(on, false)
	assert.Equal(t, base, off)
}
