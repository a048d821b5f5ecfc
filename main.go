// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// dmxstat - DMX-512 Serial Receiver and Analyzer
//
// A CLI tool for receiving DMX-512 frames from a serial port, keeping them
// aligned to the BREAK, and reporting frames, monitored slots and sync
// health in human-readable format.

package main

import (
	"os"

	"github.com/Thermoquad/dmxstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
