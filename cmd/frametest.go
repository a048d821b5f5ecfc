// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

var (
	frameTestTimeout int
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test the line by waiting for a complete DMX-512 frame",
	Long: `Wait for a complete DMX-512 frame on the serial port until timeout.

This command opens the serial port and waits for any frame terminated by a
valid BREAK marker. Misaligned data is resynchronized first, exactly as the
monitor does.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a frame
  2 - Connection or read error

Useful for checking adapter wiring and line termination.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(true)
	if err != nil {
		return err
	}
	defer log.Sync()

	port, err := OpenTransport(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("dmxstat - Frame Test\n")
	fmt.Printf("Connection: %s\n", port)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for a DMX-512 frame...\n\n")

	frameChan := make(chan *dmx.Frame, 1)
	errChan := make(chan error, 1)
	var resync *dmx.ResyncInfo

	found := dmx.HandlerFunc(func(e dmx.Event) {
		switch e.Kind {
		case dmx.EventSyncFound:
			resync = e.Resync
		case dmx.EventFrame:
			select {
			case frameChan <- e.Frame:
			default:
			}
		}
	})
	engine, err := newEngine(port, cfg, log, found)
	if err != nil {
		port.Close()
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		errChan <- engine.Run(ctx)
	}()

	code := 0
	select {
	case f := <-frameChan:
		fmt.Printf("SUCCESS: Received frame\n")
		fmt.Printf("  Start Code: %s (0x%02X)\n", dmx.FormatStartCode(f.StartCode()), f.StartCode())
		fmt.Printf("  Active Slots: %d of %d\n", dmx.ActiveSlots(f.Slots()), dmx.SlotCount)
		if resync != nil {
			fmt.Printf("  Resync: %d chunks, %d bytes discarded\n", resync.Chunks, resync.Discarded)
		}

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		code = 2

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No frame received within %d seconds\n", frameTestTimeout)
		code = 1
	}

	cancel()
	port.Close()
	os.Exit(code)
	return nil
}
