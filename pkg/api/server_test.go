package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/channels"
	"github.com/pxfen/framegate/pkg/config"
)

func newTestServer() *Server {
	messageBus := bus.NewMessageBus()
	return NewServer(config.GatewayConfig{Host: "127.0.0.1", Port: 0}, channels.NewManager(messageBus), messageBus)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q", body["status"])
	}
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		UptimeSeconds int             `json:"uptime_seconds"`
		Channels      map[string]bool `json:"channels"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UptimeSeconds < 0 {
		t.Fatalf("uptime = %d", body.UptimeSeconds)
	}
	if body.Channels == nil {
		t.Fatal("channels map missing from status")
	}
}

func TestUpgraderOriginCheck(t *testing.T) {
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://127.0.0.1:8443", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := upgrader.CheckOrigin(req); got != tc.want {
			t.Errorf("CheckOrigin(origin=%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}
