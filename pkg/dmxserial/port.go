// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dmxserial opens a serial port as a dmx.Transport.
//
// The port is opened at 250000 baud 8N2 and its line discipline is put in
// mark mode: BREAK conditions are delivered in-band as FF 00 00 and data FF
// bytes are doubled. SetStrip toggles ISTRIP for the resynchronization scan.
// Line discipline control is only available on Linux.
package dmxserial

import (
	"errors"
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

// ErrUnsupported is returned by Open on platforms without termios control
var ErrUnsupported = errors.New("dmxserial: break marking is not supported on this platform")

// Config holds the configuration for a DMX serial port
type Config struct {
	// Port is the serial port path (e.g. "/dev/ttyUSB0")
	Port string
	// BaudRate defaults to dmx.BaudRate
	BaudRate int
	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// Port is a serial port in mark mode
type Port struct {
	cfg  Config
	port serial.Port
	line *lineControl
	log  *zap.Logger

	mu     sync.Mutex
	strip  bool
	closed bool
}

var _ dmx.Transport = (*Port)(nil)

// Open opens the port and configures its line discipline for break marking
func Open(cfg Config) (*Port, error) {
	if cfg.Port == "" {
		return nil, errors.New("dmxserial: serial port is required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = dmx.BaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: dmx.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	line, err := openLineControl(cfg.Port)
	if err != nil {
		port.Close()
		return nil, err
	}
	if err := line.setMarkMode(); err != nil {
		line.close()
		port.Close()
		return nil, fmt.Errorf("dmxserial: enable mark mode on %s: %w", cfg.Port, err)
	}

	log := cfg.Logger.With(zap.String("port", cfg.Port))
	log.Info("serial port opened", zap.Int("baud", cfg.BaudRate))

	return &Port{
		cfg:  cfg,
		port: port,
		line: line,
		log:  log,
	}, nil
}

// Read reads raw line discipline output. It blocks until at least one byte
// is available or the port is closed.
func (p *Port) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		if err != nil {
			return n, translateError(err)
		}
		if n > 0 || len(b) == 0 {
			return n, nil
		}
		if p.isClosed() {
			return 0, ErrClosed
		}
	}
}

// ResetInputBuffer discards bytes received but not yet read
func (p *Port) ResetInputBuffer() error {
	return p.port.ResetInputBuffer()
}

// SetStrip switches between mark mode and strip mode
func (p *Port) SetStrip(strip bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.line.setStrip(strip); err != nil {
		return err
	}
	if p.strip != strip {
		p.log.Debug("line discipline changed", zap.Bool("strip", strip))
	}
	p.strip = strip
	return nil
}

// Name returns the port path
func (p *Port) Name() string {
	return p.cfg.Port
}

// String describes the connection for status lines
func (p *Port) String() string {
	return fmt.Sprintf("Serial: %s @ %d baud", p.cfg.Port, p.cfg.BaudRate)
}

// Close restores the original line settings and closes the port. A Read
// blocked in another goroutine returns ErrClosed.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	restoreErr := p.line.restore()
	p.line.close()
	if err := p.port.Close(); err != nil {
		return err
	}
	p.log.Info("serial port closed")
	return restoreErr
}

func (p *Port) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
