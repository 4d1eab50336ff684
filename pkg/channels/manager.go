package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/logger"
)

// Manager owns the registered channels and routes bus outbound traffic to
// them by channel name.
type Manager struct {
	bus      *bus.MessageBus
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewManager(messageBus *bus.MessageBus) *Manager {
	return &Manager{
		bus:      messageBus,
		channels: make(map[string]Channel),
	}
}

func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names returns the registered channel names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// Running reports per-channel running state.
func (m *Manager) Running() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		state[name] = ch.IsRunning()
	}
	return state
}

// StartAll starts every registered channel. A channel that fails to start is
// logged and skipped; the rest keep running.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			continue
		}
		logger.InfoCF("channels", "Channel started", map[string]interface{}{"channel": name})
	}
}

func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Failed to stop channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}

// DispatchOutbound consumes bus outbound messages and delivers each through
// its channel until ctx is cancelled. Delivery failures are logged; the loop
// never stops for them.
func (m *Manager) DispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := m.deliver(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Failed to deliver outbound message", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}

func (m *Manager) deliver(ctx context.Context, msg bus.OutboundMessage) error {
	ch, ok := m.Get(msg.Channel)
	if !ok {
		return fmt.Errorf("unknown channel %q", msg.Channel)
	}
	return ch.Send(ctx, msg)
}
