// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/dmxstat/internal/config"
	"github.com/Thermoquad/dmxstat/internal/httpserver"
	"github.com/Thermoquad/dmxstat/internal/metrics"
	"github.com/Thermoquad/dmxstat/pkg/dmx"
	"github.com/Thermoquad/dmxstat/pkg/dmxstream"
)

// statusServer bundles the HTTP server with the handlers that feed it
type statusServer struct {
	srv     *httpserver.Server
	hub     *dmxstream.Hub
	tracker *httpserver.Tracker
	metrics *metrics.DMXMetrics
	log     *zap.Logger
}

// newStatusServer builds the status server when http.enable is set, nil otherwise
func newStatusServer(cfg *config.Config, source string, log *zap.Logger) *statusServer {
	if !cfg.HTTP.Enable {
		return nil
	}

	reg := metrics.NewRegistry()
	s := &statusServer{
		hub:     dmxstream.NewHub(log.Named("stream"), cfg.HTTP.StreamFrameRate),
		tracker: httpserver.NewTracker(source),
		metrics: metrics.NewDMXMetrics(reg),
		log:     log.Named("http"),
	}
	s.srv = httpserver.New(cfg.HTTP, cfg.Metrics.Path, metrics.Handler(reg), s.tracker.Synced, s.tracker, s.hub)
	return s
}

// handlers returns the engine handlers feeding the server
func (s *statusServer) handlers() []dmx.Handler {
	if s == nil {
		return nil
	}
	return []dmx.Handler{s.tracker, s.metrics, s.hub}
}

func (s *statusServer) start() {
	if s == nil {
		return
	}
	s.log.Info("status server listening", zap.String("addr", s.srv.Addr()))
	go func() {
		if err := s.srv.Start(); err != nil {
			s.log.Error("status server failed", zap.Error(err))
		}
	}()
}

func (s *statusServer) stop() {
	if s == nil {
		return
	}
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("status server shutdown", zap.Error(err))
	}
}
