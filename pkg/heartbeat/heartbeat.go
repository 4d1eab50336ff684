// Package heartbeat publishes a scheduled liveness message to the bus so an
// operator chat can see the gateway is alive.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/config"
	"github.com/pxfen/framegate/pkg/logger"
)

const defaultCron = "*/30 * * * *"

type Service struct {
	cfg config.HeartbeatConfig
	bus *bus.MessageBus
}

func New(cfg config.HeartbeatConfig, messageBus *bus.MessageBus) (*Service, error) {
	if cfg.Cron == "" {
		cfg.Cron = defaultCron
	}
	if !gronx.New().IsValid(cfg.Cron) {
		return nil, fmt.Errorf("heartbeat: invalid cron expression %q", cfg.Cron)
	}
	if cfg.Channel == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("heartbeat: channel and chat_id must be configured")
	}
	if cfg.Message == "" {
		cfg.Message = "framegate heartbeat"
	}
	return &Service{cfg: cfg, bus: messageBus}, nil
}

// Run publishes the heartbeat message at each cron tick until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	logger.InfoCF("heartbeat", "Heartbeat scheduled", map[string]interface{}{
		"cron":    s.cfg.Cron,
		"channel": s.cfg.Channel,
	})

	for {
		next, err := gronx.NextTick(s.cfg.Cron, false)
		if err != nil {
			logger.ErrorCF("heartbeat", "Failed to compute next tick", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.bus.PublishOutbound(bus.OutboundMessage{
			Channel: s.cfg.Channel,
			ChatID:  s.cfg.ChatID,
			Content: s.cfg.Message,
		})
		logger.DebugC("heartbeat", "Heartbeat published")
	}
}
