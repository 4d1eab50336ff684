package heartbeat

import (
	"testing"

	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/config"
)

func TestNewAppliesDefaults(t *testing.T) {
	svc, err := New(config.HeartbeatConfig{
		Channel: "telegram",
		ChatID:  "42",
	}, bus.NewMessageBus())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.cfg.Cron != defaultCron {
		t.Fatalf("cron = %q, want default", svc.cfg.Cron)
	}
	if svc.cfg.Message == "" {
		t.Fatal("message should default to a non-empty string")
	}
}

func TestNewRejectsInvalidCron(t *testing.T) {
	_, err := New(config.HeartbeatConfig{
		Cron:    "not a cron",
		Channel: "telegram",
		ChatID:  "42",
	}, bus.NewMessageBus())
	if err == nil {
		t.Fatal("invalid cron expression should be rejected")
	}
}

func TestNewRequiresTarget(t *testing.T) {
	if _, err := New(config.HeartbeatConfig{ChatID: "42"}, bus.NewMessageBus()); err == nil {
		t.Fatal("missing channel should be rejected")
	}
	if _, err := New(config.HeartbeatConfig{Channel: "telegram"}, bus.NewMessageBus()); err == nil {
		t.Fatal("missing chat_id should be rejected")
	}
}

func TestNewAcceptsCustomSchedule(t *testing.T) {
	svc, err := New(config.HeartbeatConfig{
		Cron:    "0 9 * * 1-5",
		Channel: "telegram",
		ChatID:  "42",
		Message: "still here",
	}, bus.NewMessageBus())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.cfg.Cron != "0 9 * * 1-5" || svc.cfg.Message != "still here" {
		t.Fatalf("cfg = %+v", svc.cfg)
	}
}
