// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dmxstat/pkg/dmxserial"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports present on this system.

USB adapters are shown with their vendor and product IDs, which helps tell
several DMX interfaces apart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := dmxserial.ListPorts()
		if err != nil {
			return fmt.Errorf("failed to list ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
