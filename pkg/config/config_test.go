package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Channels.BotFramework.Enabled || cfg.Channels.Telegram.Enabled {
		t.Fatal("channels should be disabled by default")
	}
	if got := cfg.Channels.BotFramework.LoginHost; got != "https://login.microsoftonline.com" {
		t.Fatalf("login host = %q", got)
	}
	if cfg.Channels.BotFramework.WebhookPort != 3978 {
		t.Fatalf("webhook port = %d, want 3978", cfg.Channels.BotFramework.WebhookPort)
	}
	if cfg.Gateway.Port != 18890 {
		t.Fatalf("gateway port = %d, want 18890", cfg.Gateway.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("log level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Channels.BotFramework.WebhookPort != 3978 {
		t.Fatalf("webhook port = %d, want default", cfg.Channels.BotFramework.WebhookPort)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"channels": {
			"botframework": {
				"enabled": true,
				"app_id": "my-app",
				"app_password": "hunter2",
				"webhook_port": 4000
			}
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	bf := cfg.Channels.BotFramework
	if !bf.Enabled || bf.AppID != "my-app" || bf.WebhookPort != 4000 {
		t.Fatalf("botframework = %+v", bf)
	}
	// untouched fields keep defaults
	if bf.LoginHost != "https://login.microsoftonline.com" {
		t.Fatalf("login host = %q, want default preserved", bf.LoginHost)
	}
	if cfg.Gateway.Port != 18890 {
		t.Fatalf("gateway port = %d, want default preserved", cfg.Gateway.Port)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"channels": {"botframework": {"app_id": "from-file"}}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FRAMEGATE_CHANNELS_BOTFRAMEWORK_APP_ID", "from-env")
	t.Setenv("FRAMEGATE_CHANNELS_BOTFRAMEWORK_LOGIN_HOST", "https://login.microsoftonline.us")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Channels.BotFramework.AppID != "from-env" {
		t.Fatalf("app_id = %q, want env to win over file", cfg.Channels.BotFramework.AppID)
	}
	if cfg.Channels.BotFramework.LoginHost != "https://login.microsoftonline.us" {
		t.Fatalf("login host = %q", cfg.Channels.BotFramework.LoginHost)
	}
}

func TestLoadConfigRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig should fail on invalid JSON")
	}
}

func TestFlexibleStringSliceMixedTypes(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["alice", 123456, "bob"]`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"alice", "123456", "bob"}
	if len(f) != len(want) {
		t.Fatalf("len = %d, want %d", len(f), len(want))
	}
	for i := range want {
		if f[i] != want[i] {
			t.Fatalf("f[%d] = %q, want %q", i, f[i], want[i])
		}
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Channels.BotFramework.AppID = "round-trip"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Channels.BotFramework.AppID != "round-trip" {
		t.Fatalf("app_id = %q", loaded.Channels.BotFramework.AppID)
	}
}
