// Package api serves the gateway's monitoring surface: health, channel
// status, and a live websocket tap of bus traffic.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/channels"
	"github.com/pxfen/framegate/pkg/config"
	"github.com/pxfen/framegate/pkg/logger"
)

type Server struct {
	config    config.GatewayConfig
	manager   *channels.Manager
	bus       *bus.MessageBus
	hub       *wsHub
	startTime time.Time
	server    *http.Server
}

func NewServer(cfg config.GatewayConfig, manager *channels.Manager, messageBus *bus.MessageBus) *Server {
	s := &Server{
		config:    cfg,
		manager:   manager,
		bus:       messageBus,
		startTime: time.Now(),
	}
	s.hub = newWSHub()
	return s
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.hub.handleWS)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler: mux,
	}

	go s.hub.run(ctx)
	go s.bridgeBusEvents(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("api", "Monitoring server stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	logger.InfoCF("api", "Monitoring server listening", map[string]interface{}{
		"addr": s.server.Addr,
	})
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// bridgeBusEvents forwards bus traffic to connected websocket clients.
func (s *Server) bridgeBusEvents(ctx context.Context) {
	inbound := s.bus.SubscribeInboundTap("api")
	outbound := s.bus.SubscribeOutboundTap("api")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			s.hub.broadcast(wsEvent{Type: "message.inbound", Timestamp: now(), Data: msg})
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			s.hub.broadcast(wsEvent{Type: "message.outbound", Timestamp: now(), Data: msg})
		}
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"channels":       s.manager.Running(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.DebugCF("api", "Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
