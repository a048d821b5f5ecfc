// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/dmxstat/internal/config"
	"github.com/Thermoquad/dmxstat/pkg/dmxstream"
)

// Server wraps the gin router and http.Server
type Server struct {
	srv *http.Server
}

// New creates the status server. /healthz is always open; /readyz, /status,
// the metrics path and /ws sit behind Basic auth when cfg carries credentials.
// A nil metricsHandler or hub leaves that route out.
func New(cfg config.HTTPConfig, metricsPath string, metricsHandler http.Handler,
	readyFn func() bool, tracker *Tracker, hub *dmxstream.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/")
	if cfg.Username != "" && cfg.Password != "" {
		api.Use(gin.BasicAuth(gin.Accounts{cfg.Username: cfg.Password}))
	}

	api.GET("/readyz", func(c *gin.Context) {
		if readyFn == nil || readyFn() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if tracker != nil {
		api.GET("/status", func(c *gin.Context) {
			s := tracker.Snapshot()
			if hub != nil {
				s.Subscribers = hub.Clients()
			}
			c.JSON(http.StatusOK, s)
		})
	}
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		api.GET(metricsPath, gin.WrapH(metricsHandler))
	}
	if hub != nil {
		api.GET("/ws", gin.WrapH(hub))
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start serves until Shutdown (blocking). It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
