// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmxtest

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, l *Line) []byte {
	t.Helper()
	out, err := io.ReadAll(l)
	require.NoError(t, err)
	return out
}

func TestLine_MarkModeEscapes(t *testing.T) {
	l := NewLine().Data(0x01, 0xFF, 0x80).Break()
	assert.Equal(t, []byte{0x01, 0xFF, 0xFF, 0x80, 0xFF, 0x00, 0x00}, readAll(t, l))
}

func TestLine_StripModeClearsBit7(t *testing.T) {
	l := NewLine().Data(0x01, 0xFF, 0x80).Break().Raw(0xFF, 0x00, 0x01)
	require.NoError(t, l.SetStrip(true))
	assert.Equal(t, []byte{0x01, 0x7F, 0x00, 0xFF, 0x00, 0x00, 0xFF, 0x00, 0x01}, readAll(t, l))
	assert.Equal(t, 1, l.StripToggles())
}

func TestLine_RenderingFollowsModeAtReadTime(t *testing.T) {
	l := NewLine().Data(0xFF).Data(0xFF)

	buf := make([]byte, 2)
	n, err := l.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF}, buf[:n])

	require.NoError(t, l.SetStrip(true))
	n, err = l.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7F}, buf[:n])
}

func TestLine_ReadChunks(t *testing.T) {
	l := NewLine().Data(make([]byte, 10)...)
	l.SetReadChunks(3, 1)

	buf := make([]byte, 10)
	var sizes []int
	for {
		n, err := l.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, n)
	}
	assert.Equal(t, []int{3, 1, 3, 1, 2}, sizes)
	assert.Equal(t, 10, l.BytesRead())
}

func TestLine_ResetDropsRenderedBytes(t *testing.T) {
	// the BREAK renders three bytes at once, only one is read
	l := NewLine().Break().Data(0x42)
	buf := make([]byte, 1)
	_, err := l.Read(buf)
	require.NoError(t, err)

	require.NoError(t, l.ResetInputBuffer())
	assert.Equal(t, []byte{0x42}, readAll(t, l))
	assert.Equal(t, 1, l.Resets())
}

func TestLine_Closed(t *testing.T) {
	l := NewLine().Data(0x00)
	require.NoError(t, l.Close())
	_, err := l.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestLine_FramePadsSlots(t *testing.T) {
	l := NewLine().Frame(0x00, []byte{1, 2})
	out := readAll(t, l)
	assert.Len(t, out, 516)
	assert.Equal(t, []byte{0x00, 1, 2, 0}, out[:4])
	assert.Equal(t, 0, l.Remaining())
}
