// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display every received frame in human-readable format",
	Long: `Continuously receive and display DMX-512 frames as they arrive.

Each frame is printed with timestamp, sequence number, start code and a hex
dump of its slots (all-zero rows are folded). Sync losses and recoveries are
printed inline, and monitored slot values follow the frame they came from.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	addReconnectFlag(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(true)
	if err != nil {
		return err
	}
	defer log.Sync()

	rx, err := openReceiver(cfg, log, reconnect)
	if err != nil {
		return err
	}
	defer rx.Close()

	fmt.Printf("dmxstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", rx)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	printer := dmx.HandlerFunc(func(e dmx.Event) {
		fmt.Print(dmx.FormatEvent(e))
	})

	server := newStatusServer(cfg, rx.String(), log)
	rx.addHandlers(server.handlers()...)
	rx.addHandlers(printer)
	server.start()
	defer server.stop()

	ctx, cancel := signalContext()
	defer cancel()
	return rx.Run(ctx)
}
