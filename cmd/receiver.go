// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dmxstat/internal/config"
	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmxserial"
)

var reconnect bool

// addReconnectFlag registers --reconnect on a receiving command
func addReconnectFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "Reopen the port when the device disconnects")
}

// receiver runs the frame engine on the configured serial port. With
// reconnect enabled it reopens the port after the device goes away and
// resumes with a fresh engine.
type receiver struct {
	cfg       *config.Config
	log       *zap.Logger
	handler   dmx.MultiHandler
	reconnect bool
	source    string

	mu   sync.Mutex
	port *dmxserial.Port
}

// openReceiver opens the port. Handlers are added before Run.
func openReceiver(cfg *config.Config, log *zap.Logger, reconnect bool) (*receiver, error) {
	port, err := OpenTransport(cfg, log)
	if err != nil {
		return nil, err
	}
	return &receiver{
		cfg:       cfg,
		log:       log,
		reconnect: reconnect,
		source:    port.String(),
		port:      port,
	}, nil
}

func (r *receiver) String() string {
	return r.source
}

// addHandlers registers event handlers for every engine this receiver runs
func (r *receiver) addHandlers(h ...dmx.Handler) {
	r.handler = append(r.handler, h...)
}

// Run runs engines until ctx is done or a non-recoverable error occurs
func (r *receiver) Run(ctx context.Context) error {
	resyncOnStart := r.cfg.DMX.ResyncOnStart
	for {
		port := r.currentPort()
		engine, err := dmx.NewEngine(port, r.options(resyncOnStart)...)
		if err != nil {
			return err
		}

		err = runEngine(ctx, engine, port)
		if err == nil || !r.reconnect || !dmxserial.IsDisconnect(err) {
			return err
		}

		r.log.Warn("device disconnected", zap.String("port", r.cfg.Serial.Port), zap.Error(err))
		port.Close()
		if engine.State() == dmx.StateSynced {
			// keep every loss paired with a find for the handlers
			r.handler.HandleEvent(dmx.Event{Kind: dmx.EventSyncLost, Time: time.Now()})
		}

		if !r.reopen(ctx) {
			return nil
		}
		// the line may be mid-frame after reopening
		resyncOnStart = true
	}
}

// options builds a fresh option set for one engine
func (r *receiver) options(resyncOnStart bool) []dmx.Option {
	opts := engineOptions(r.cfg, r.log, r.handler)
	return append(opts, dmx.WithResyncOnStart(resyncOnStart))
}

// reopen retries the port with exponential backoff until it opens or ctx is done
func (r *receiver) reopen(ctx context.Context) bool {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		port, err := OpenTransport(r.cfg, r.log)
		if err == nil {
			r.mu.Lock()
			r.port = port
			r.mu.Unlock()
			r.log.Info("device reconnected", zap.String("port", r.cfg.Serial.Port))
			return true
		}
		r.log.Debug("reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (r *receiver) currentPort() *dmxserial.Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port
}

// Close closes the current port
func (r *receiver) Close() error {
	return r.currentPort().Close()
}
