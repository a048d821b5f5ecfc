// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/dmxstat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
DMXSTAT_* environment variables and command line flags.

The HTTP password is masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "# config file: %s\n", used)
		}
		return writeConfig(cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func writeConfig(cfg *config.Config) error {
	masked := *cfg
	if masked.HTTP.Password != "" {
		masked.HTTP.Password = "********"
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&masked); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
