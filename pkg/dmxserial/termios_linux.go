// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package dmxserial

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// lineControl adjusts the input flags of a tty through a second descriptor.
// Termios settings belong to the device, so changes apply to the descriptor
// the serial library reads from as well.
type lineControl struct {
	fd   int
	orig *unix.Termios
}

func openLineControl(path string) (*lineControl, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("dmxserial: open %s for line control: %w", path, err)
	}

	// TCGETS2 keeps the custom 250000 baud rate intact on write back
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS2)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("dmxserial: read termios on %s: %w", path, err)
	}

	return &lineControl{fd: fd, orig: orig}, nil
}

func (c *lineControl) update(mutate func(iflag uint32) uint32) error {
	t, err := unix.IoctlGetTermios(c.fd, unix.TCGETS2)
	if err != nil {
		return fmt.Errorf("read termios: %w", err)
	}
	t.Iflag = mutate(t.Iflag)
	if err := unix.IoctlSetTermios(c.fd, unix.TCSETS2, t); err != nil {
		return fmt.Errorf("write termios: %w", err)
	}
	return nil
}

func (c *lineControl) setMarkMode() error {
	return c.update(markModeIflag)
}

func (c *lineControl) setStrip(strip bool) error {
	return c.update(func(iflag uint32) uint32 {
		return stripIflag(iflag, strip)
	})
}

func (c *lineControl) restore() error {
	return unix.IoctlSetTermios(c.fd, unix.TCSETS2, c.orig)
}

func (c *lineControl) close() {
	unix.Close(c.fd)
}

// markModeIflag reports BREAK as FF 00 00 and escapes data FF as FF FF
func markModeIflag(iflag uint32) uint32 {
	iflag |= unix.PARMRK
	iflag &^= unix.IGNBRK | unix.BRKINT | unix.IGNPAR | unix.ISTRIP | unix.INPCK
	return iflag
}

func stripIflag(iflag uint32, strip bool) uint32 {
	if strip {
		return iflag | unix.ISTRIP
	}
	return iflag &^ unix.ISTRIP
}
