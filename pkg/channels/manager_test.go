package channels

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pxfen/framegate/pkg/bus"
)

// fakeChannel records delivered messages for manager tests.
type fakeChannel struct {
	name    string
	running bool
	failure error

	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (f *fakeChannel) Name() string                    { return f.name }
func (f *fakeChannel) Start(ctx context.Context) error { f.running = true; return f.failure }
func (f *fakeChannel) Stop(ctx context.Context) error  { f.running = false; return nil }
func (f *fakeChannel) IsRunning() bool                 { return f.running }

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if f.failure != nil {
		return f.failure
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestManagerRegisterAndGet(t *testing.T) {
	m := NewManager(bus.NewMessageBus())
	ch := &fakeChannel{name: "fake"}
	m.Register(ch)

	got, ok := m.Get("fake")
	if !ok || got != ch {
		t.Fatalf("Get(fake) = %v, %v", got, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("Get(missing) should report false")
	}
	if names := m.Names(); len(names) != 1 || names[0] != "fake" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestManagerRunningState(t *testing.T) {
	m := NewManager(bus.NewMessageBus())
	up := &fakeChannel{name: "up", running: true}
	down := &fakeChannel{name: "down"}
	m.Register(up)
	m.Register(down)

	state := m.Running()
	if !state["up"] || state["down"] {
		t.Fatalf("Running() = %v", state)
	}
}

func TestManagerDeliverRoutesByChannelName(t *testing.T) {
	m := NewManager(bus.NewMessageBus())
	ch := &fakeChannel{name: "fake", running: true}
	m.Register(ch)

	msg := bus.OutboundMessage{Channel: "fake", ChatID: "1", Content: "hi"}
	if err := m.deliver(context.Background(), msg); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0].Content != "hi" {
		t.Fatalf("sent = %v", ch.sent)
	}

	if err := m.deliver(context.Background(), bus.OutboundMessage{Channel: "nope"}); err == nil {
		t.Fatal("deliver to unknown channel should fail")
	}
}

func TestManagerDispatchOutboundLoop(t *testing.T) {
	messageBus := bus.NewMessageBus()
	m := NewManager(messageBus)
	ch := &fakeChannel{name: "fake", running: true}
	m.Register(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.DispatchOutbound(ctx)
		close(done)
	}()

	messageBus.PublishOutbound(bus.OutboundMessage{Channel: "fake", ChatID: "1", Content: "first"})
	messageBus.PublishOutbound(bus.OutboundMessage{Channel: "fake", ChatID: "1", Content: "second"})

	deadline := time.After(2 * time.Second)
	for ch.sentCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("deliveries = %d, want 2", ch.sentCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DispatchOutbound did not stop on cancellation")
	}
}

func TestManagerDispatchOutboundSurvivesDeliveryFailure(t *testing.T) {
	messageBus := bus.NewMessageBus()
	m := NewManager(messageBus)
	broken := &fakeChannel{name: "broken", running: true, failure: fmt.Errorf("down")}
	working := &fakeChannel{name: "working", running: true}
	m.Register(broken)
	m.Register(working)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.DispatchOutbound(ctx)

	messageBus.PublishOutbound(bus.OutboundMessage{Channel: "broken", Content: "x"})
	messageBus.PublishOutbound(bus.OutboundMessage{Channel: "working", Content: "y"})

	deadline := time.After(2 * time.Second)
	for working.sentCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("delivery loop stopped after a failed delivery")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
