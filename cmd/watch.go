// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmxstream"
)

var (
	watchURL      string
	watchUsername string
	watchInsecure bool
	watchEncoding string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the event feed of a remote dmxstat",
	Long: `Connect to the /ws event feed of another dmxstat instance and print
its events as they arrive.

The remote instance must be running monitor or raw_log with the status server
enabled. Frames on the feed are rate limited by the remote's
http.streamFrameRate setting; sync events are never dropped.

If --username is set the password is read from DMXSTAT_PASSWORD or prompted
for.

Examples:
  dmxstat watch --url ws://stage-pi.local:8080/ws
  dmxstat watch --url wss://stage-pi.local/ws --username admin --encoding cbor`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchURL, "url", "u", "", "Feed URL (ws:// or wss://)")
	watchCmd.Flags().StringVar(&watchUsername, "username", "", "HTTP Basic auth username")
	watchCmd.Flags().BoolVarP(&watchInsecure, "insecure", "k", false, "Skip TLS certificate verification")
	watchCmd.Flags().StringVar(&watchEncoding, "encoding", "cbor", "Feed encoding (json, cbor)")
	if err := watchCmd.MarkFlagRequired("url"); err != nil {
		panic(err)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	encoding, err := dmxstream.ParseEncoding(watchEncoding)
	if err != nil {
		return err
	}

	opts := dmxstream.DialOptions{
		Username:      watchUsername,
		SkipSSLVerify: watchInsecure,
		Encoding:      encoding,
	}
	if watchUsername != "" {
		if opts.Password, err = GetPassword(); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := dmxstream.Dial(ctx, watchURL, opts)
	if err != nil {
		return err
	}

	// Next blocks on the socket; closing it is the only way to interrupt
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	fmt.Printf("dmxstat - Watch\n")
	fmt.Printf("Feed: %s (%s)\n", watchURL, encoding)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := dmx.NewStatistics()
	for {
		e, err := client.Next()
		if err != nil {
			stats.CalculateRates()
			fmt.Println()
			fmt.Print(stats.String())
			if ctx.Err() != nil || errors.Is(err, dmxstream.ErrConnectionClosed) {
				return nil
			}
			return fmt.Errorf("feed error: %w", err)
		}
		stats.Update(e)
		fmt.Print(dmx.FormatEvent(e))
	}
}
