// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/dmxstat/internal/config"
	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	enableHTTP    bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Track sync losses, start codes and frame rate",
	Long: `Receive DMX-512 frames and track synchronization health with statistics.

This command reports:
  - Sync losses and how many bytes each resynchronization discarded
  - Frames with alternate start codes (RDM, text, manufacturer specific)
  - Monitored slot values (--monitor)
  - Frame rate and sync loss rate

By default only sync events, alternate start codes and monitored values are
displayed. Use --show-all to display every frame.

The terminal UI is used when stdout is a terminal; --tui=false forces text
mode with periodic statistics summaries. --http serves /status, /metrics and
the /ws event feed while monitoring.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just events)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI when stdout is a terminal (false for text mode)")
	monitorCmd.Flags().BoolVar(&enableHTTP, "http", false, "Serve status, metrics and the event feed (overrides http.enable)")
	monitorCmd.Flags().String("http-addr", ":8080", "Status server listen address")
	if err := v.BindPFlag("http.addr", monitorCmd.Flags().Lookup("http-addr")); err != nil {
		panic(err)
	}
	addReconnectFlag(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	tui := useTUI && isTerminal()

	cfg, log, err := setup(!tui)
	if err != nil {
		return err
	}
	defer log.Sync()
	if enableHTTP {
		cfg.HTTP.Enable = true
	}

	rx, err := openReceiver(cfg, log, reconnect)
	if err != nil {
		return err
	}
	defer rx.Close()

	ctx, cancel := signalContext()
	defer cancel()

	// Events cross from the engine goroutine to the display loop
	events := make(chan dmx.Event, 256)
	forward := dmx.HandlerFunc(func(e dmx.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})

	server := newStatusServer(cfg, rx.String(), log)
	rx.addHandlers(server.handlers()...)
	rx.addHandlers(forward)
	server.start()
	defer server.stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- rx.Run(ctx)
	}()

	if tui {
		return runTUIMode(ctx, cancel, rx.String(), cfg, events, errCh)
	}
	return runTextMode(rx.String(), cfg, log, events, errCh)
}

// printSyncLost prints a sync loss in highlighted format
func printSyncLost(e dmx.Event) {
	timestamp := e.Time.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mSYNC LOST\033[0m\n", timestamp)
	fmt.Printf("  >>> RESYNCHRONIZING <<<\n\n")
}

// printSyncFound prints a completed resynchronization
func printSyncFound(e dmx.Event) {
	timestamp := e.Time.Format("15:04:05.000")
	if e.Resync == nil {
		fmt.Printf("[%s] \033[1;32mSYNC FOUND\033[0m\n\n", timestamp)
		return
	}
	fmt.Printf("[%s] \033[1;32mSYNC FOUND:\033[0m %d chunks scanned, %d bytes discarded in %s\n\n",
		timestamp, e.Resync.Chunks, e.Resync.Discarded, e.Resync.Duration.Round(time.Millisecond))
}

// printAnomalies prints start code anomalies for a frame
func printAnomalies(f *dmx.Frame, anomalies []dmx.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mSTART CODE:\033[0m %s (0x%02X) frame #%d\n",
		timestamp, dmx.FormatStartCode(f.StartCode()), f.StartCode(), f.Seq())
	for i, a := range anomalies {
		switch a.Type {
		case dmx.AnomalyRDMStartCode:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, a.Message)
		default:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
		}
	}
	fmt.Println()
}

// printEvent prints an event in text mode
func printEvent(e dmx.Event, showAll bool) {
	switch e.Kind {
	case dmx.EventSyncLost:
		printSyncLost(e)
	case dmx.EventSyncFound:
		printSyncFound(e)
	case dmx.EventFrame:
		if e.Frame == nil {
			return
		}
		if anomalies := dmx.ValidateFrame(e.Frame); len(anomalies) > 0 {
			printAnomalies(e.Frame, anomalies)
		} else if showAll {
			fmt.Print(dmx.FormatFrame(e.Frame))
		}
	case dmx.EventMonitored:
		if showAll {
			fmt.Print(dmx.FormatEvent(e))
		}
	}
}

// runTextMode prints events as they arrive and statistics periodically
func runTextMode(source string, cfg *config.Config, log *zap.Logger,
	events <-chan dmx.Event, errCh <-chan error) error {
	fmt.Printf("dmxstat - Monitor\n")
	fmt.Printf("Connection: %s\n", source)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if len(cfg.DMX.Monitored) > 0 {
		fmt.Printf("Monitored slots: %v\n", cfg.DMX.Monitored)
	}
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Events only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	tm := &textMonitor{stats: dmx.NewStatistics(), showAll: showAll}

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case e := <-events:
			tm.handle(e)

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(tm.stats.String())
			fmt.Println()

		case err := <-errCh:
			// the receiver has stopped, whatever it queued is final
			tm.drain(events)
			fmt.Println()
			fmt.Print(tm.stats.String())
			if err != nil {
				log.Error("receiver stopped", zap.Error(err))
			}
			return err
		}
	}
}

// textMonitor prints events in text mode and keeps statistics
type textMonitor struct {
	stats         *dmx.Statistics
	showAll       bool
	lastMonitored map[int]int
}

func (t *textMonitor) handle(e dmx.Event) {
	t.stats.Update(e)
	if e.Kind == dmx.EventMonitored && !t.showAll && !sameValues(t.lastMonitored, e.Monitored) {
		// Only changes are printed unless --show-all
		fmt.Print(dmx.FormatEvent(e))
		t.lastMonitored = e.Monitored
	}
	printEvent(e, t.showAll)
}

// drain handles events still queued without blocking
func (t *textMonitor) drain(events <-chan dmx.Event) {
	for {
		select {
		case e := <-events:
			t.handle(e)
		default:
			return
		}
	}
}

func sameValues(a, b map[int]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return a != nil
}

// runTUIMode runs the monitor in the terminal UI
func runTUIMode(ctx context.Context, cancel context.CancelFunc, source string, cfg *config.Config,
	events <-chan dmx.Event, errCh <-chan error) error {
	m := initialModel(source, statsInterval, showAll, cfg.DMX.Monitored)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Event pump goroutine
	go func() {
		for {
			select {
			case e := <-events:
				p.Send(eventMsg(e))
			case err := <-errCh:
				p.Send(engineDoneMsg{err: err})
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	final, err := p.Run()
	cancel()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	if fm, ok := final.(model); ok && fm.engineErr != nil {
		return fm.engineErr
	}
	return nil
}
