// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/dmxstat/internal/config"
	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmxserial"
)

// OpenTransport opens the configured serial port in mark mode
func OpenTransport(cfg *config.Config, log *zap.Logger) (*dmxserial.Port, error) {
	if cfg.Serial.Port == "" {
		return nil, errors.New("--port (or serial.port) must be specified")
	}
	return dmxserial.Open(dmxserial.Config{
		Port:     cfg.Serial.Port,
		BaudRate: cfg.Serial.Baud,
		Logger:   log,
	})
}

// engineOptions maps the configuration to engine options. Sync transitions
// always reach the log; handlers run after the log handler.
func engineOptions(cfg *config.Config, log *zap.Logger, handlers ...dmx.Handler) []dmx.Option {
	return []dmx.Option{
		dmx.WithMonitored(cfg.DMX.Monitored...),
		dmx.WithResyncOnStart(cfg.DMX.ResyncOnStart),
		dmx.WithLogger(log.Named("engine")),
		dmx.WithHandler(dmx.NewLogHandler(log.Named("frames"), 1)),
		dmx.WithHandler(dmx.MultiHandler(handlers)),
	}
}

// newEngine builds an engine from the configuration
func newEngine(t dmx.Transport, cfg *config.Config, log *zap.Logger, handlers ...dmx.Handler) (*dmx.Engine, error) {
	return dmx.NewEngine(t, engineOptions(cfg, log, handlers...)...)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runEngine runs e until ctx is cancelled. Blocking reads are unwound by
// closing the transport, so a shutdown is reported as nil.
func runEngine(ctx context.Context, e *dmx.Engine, closer io.Closer) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closer.Close()
		case <-done:
		}
	}()

	err := e.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("DMXSTAT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// isTerminal reports whether stdout is an interactive terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
