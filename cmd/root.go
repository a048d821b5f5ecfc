// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/dmxstat/internal/config"
	"github.com/Thermoquad/dmxstat/internal/logging"
	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

var (
	cfgFile string

	// v holds defaults, environment overrides and the persistent flags below
	v = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "dmxstat",
	Short: "DMX-512 Serial Receiver and Analyzer",
	Long: `dmxstat - A CLI tool for receiving and analyzing DMX-512 over a serial port.

The port is opened at 250000 baud 8N2 with break marking enabled, so every
BREAK arrives in-band and frames can be validated and resynchronized without
any knowledge of the transmitter's timing.

Configuration is read from --config, $DMXSTAT_CONFIG or ./dmxstat.yaml, and any
key can be overridden with a DMXSTAT_ environment variable
(DMXSTAT_SERIAL_PORT, DMXSTAT_LOGGING_LEVEL, ...).`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", dmx.BaudRate, "Baud rate")
	flags.IntSliceP("monitor", "m", nil, "Slot addresses (0-511) to report on every frame")
	flags.Bool("resync-on-start", false, "Acquire sync before reading the first frame")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")

	bind := map[string]string{
		"serial.port":       "port",
		"serial.baud":       "baud",
		"dmx.monitored":     "monitor",
		"dmx.resyncOnStart": "resync-on-start",
		"logging.level":     "log-level",
		"logging.format":    "log-format",
	}
	for key, name := range bind {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the effective configuration
func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// setup loads the configuration and builds the logger. console is false
// when the TUI owns the terminal; logs then go to the log file only.
func setup(console bool) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.InitLogger(cfg.Logging, console)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
