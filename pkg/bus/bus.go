package bus

import (
	"context"
	"fmt"
	"sync"
)

// WildcardChannel matches any channel when registered as a handler key.
const WildcardChannel = "*"

// tap is a named subscriber receiving copies of bus traffic. Taps are
// best-effort: a slow consumer drops messages instead of blocking senders.
type tap struct {
	name string
	ch   chan interface{}
}

// MessageBus connects channels to the message-processing pipeline. Inbound
// messages are dispatched synchronously to a registered handler so the caller
// can hold its platform acknowledgment open until the pipeline finishes.
// Outbound messages flow through a buffered queue consumed by the channel
// manager.
type MessageBus struct {
	outbound  chan OutboundMessage
	handlers  map[string]MessageHandler
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	inboundTaps  []*tap
	outboundTaps []*tap
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		outbound: make(chan OutboundMessage, 100),
		handlers: make(map[string]MessageHandler),
	}
}

// RegisterHandler binds the pipeline callback for one channel. Use
// WildcardChannel to handle every channel with the same callback.
func (mb *MessageBus) RegisterHandler(channel string, handler MessageHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.handlers[channel] = handler
}

func (mb *MessageBus) handlerFor(channel string) (MessageHandler, bool) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if h, ok := mb.handlers[channel]; ok {
		return h, true
	}
	h, ok := mb.handlers[WildcardChannel]
	return h, ok
}

// Dispatch fans the message out to inbound taps and invokes the registered
// handler, blocking until it returns. The error is the handler's own; taps
// never fail a dispatch.
func (mb *MessageBus) Dispatch(ctx context.Context, msg InboundMessage) error {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return fmt.Errorf("bus: closed")
	}
	for _, t := range mb.inboundTaps {
		select {
		case t.ch <- msg:
		default: // drop for slow taps
		}
	}
	mb.mu.RUnlock()

	handler, ok := mb.handlerFor(msg.Channel)
	if !ok {
		return fmt.Errorf("bus: no handler registered for channel %q", msg.Channel)
	}
	return handler(ctx, msg)
}

// PublishOutbound enqueues a message for the channel manager. When the queue
// is full the oldest entry is dropped so publishers never block.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return
	}
	for _, t := range mb.outboundTaps {
		select {
		case t.ch <- msg:
		default:
		}
	}
	mb.mu.RUnlock()

	select {
	case mb.outbound <- msg:
	default:
		select {
		case <-mb.outbound:
		default:
		}
		select {
		case mb.outbound <- msg:
		default:
		}
	}
}

// SubscribeOutbound blocks for the next outbound message or context
// cancellation.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// SubscribeInboundTap creates a named observer of all dispatched inbound
// messages. The returned channel is buffered; slow consumers miss messages.
func (mb *MessageBus) SubscribeInboundTap(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	t := &tap{name: name, ch: make(chan interface{}, 64)}
	mb.inboundTaps = append(mb.inboundTaps, t)
	return t.ch
}

// SubscribeOutboundTap creates a named observer of all published outbound
// messages.
func (mb *MessageBus) SubscribeOutboundTap(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	t := &tap{name: name, ch: make(chan interface{}, 64)}
	mb.outboundTaps = append(mb.outboundTaps, t)
	return t.ch
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed = true
		for _, t := range mb.inboundTaps {
			close(t.ch)
		}
		for _, t := range mb.outboundTaps {
			close(t.ch)
		}
		mb.mu.Unlock()
		close(mb.outbound)
	})
}
