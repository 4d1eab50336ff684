// Package channels bridges external chat platforms to the message bus. Each
// channel normalizes platform events into bus.InboundMessage and delivers
// bus.OutboundMessage back to the platform.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/logger"
	"github.com/pxfen/framegate/pkg/utils"
)

// Channel is implemented by every platform connector.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the state every channel shares: its name, the bus it
// dispatches into, and the sender allowlist.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
	running   atomic.Bool
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = true
	}
	return &BaseChannel{
		name:      name,
		bus:       messageBus,
		allowFrom: allowed,
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) setRunning(v bool) { c.running.Store(v) }

// IsAllowed reports whether senderID passes the allowlist. An empty allowlist
// admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[senderID]
}

// HandleInbound normalizes one platform event and dispatches it to the
// pipeline, blocking until the handler returns. reply must be bound to the
// event being handled.
func (c *BaseChannel) HandleInbound(ctx context.Context, senderID, chatID, content string, reply bus.Responder, metadata map[string]string) error {
	msg := bus.InboundMessage{
		Channel:       c.name,
		SenderID:      senderID,
		ChatID:        chatID,
		Content:       content,
		SessionKey:    c.name + ":" + chatID,
		Metadata:      metadata,
		CorrelationID: uuid.NewString(),
		Reply:         reply,
	}

	logger.DebugCF(c.name, "Dispatching inbound message", map[string]interface{}{
		"sender_id":      senderID,
		"chat_id":        chatID,
		"correlation_id": msg.CorrelationID,
		"preview":        utils.Truncate(content, 50),
	})

	return c.bus.Dispatch(ctx, msg)
}
