package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Fall back to []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Logging   LoggingConfig   `json:"logging"`
}

type ChannelsConfig struct {
	BotFramework BotFrameworkConfig `json:"botframework"`
	Telegram     TelegramConfig     `json:"telegram"`
}

// BotFrameworkConfig configures the Bot Framework channel. LoginHost is
// overridable for sovereign clouds (for example login.microsoftonline.us).
type BotFrameworkConfig struct {
	Enabled     bool                `json:"enabled" env:"FRAMEGATE_CHANNELS_BOTFRAMEWORK_ENABLED"`
	AppID       string              `json:"app_id" env:"FRAMEGATE_CHANNELS_BOTFRAMEWORK_APP_ID"`
	AppPassword string              `json:"app_password" env:"FRAMEGATE_CHANNELS_BOTFRAMEWORK_APP_PASSWORD"`
	LoginHost   string              `json:"login_host" env:"FRAMEGATE_CHANNELS_BOTFRAMEWORK_LOGIN_HOST"`
	WebhookHost string              `json:"webhook_host" env:"FRAMEGATE_CHANNELS_BOTFRAMEWORK_WEBHOOK_HOST"`
	WebhookPort int                 `json:"webhook_port" env:"FRAMEGATE_CHANNELS_BOTFRAMEWORK_WEBHOOK_PORT"`
	AllowFrom   FlexibleStringSlice `json:"allow_from" env:"FRAMEGATE_CHANNELS_BOTFRAMEWORK_ALLOW_FROM"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled" env:"FRAMEGATE_CHANNELS_TELEGRAM_ENABLED"`
	Token     string              `json:"token" env:"FRAMEGATE_CHANNELS_TELEGRAM_TOKEN"`
	Proxy     string              `json:"proxy" env:"FRAMEGATE_CHANNELS_TELEGRAM_PROXY"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"FRAMEGATE_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

// GatewayConfig configures the monitoring API server (health, status, live
// websocket event tap).
type GatewayConfig struct {
	Enabled bool   `json:"enabled" env:"FRAMEGATE_GATEWAY_ENABLED"`
	Host    string `json:"host" env:"FRAMEGATE_GATEWAY_HOST"`
	Port    int    `json:"port" env:"FRAMEGATE_GATEWAY_PORT"`
}

// PipelineConfig selects the built-in pipeline handler. Deployments embedding
// framegate register their own handler on the bus and leave Echo off.
type PipelineConfig struct {
	Echo bool `json:"echo" env:"FRAMEGATE_PIPELINE_ECHO"`
}

type HeartbeatConfig struct {
	Enabled bool   `json:"enabled" env:"FRAMEGATE_HEARTBEAT_ENABLED"`
	Cron    string `json:"cron" env:"FRAMEGATE_HEARTBEAT_CRON"`
	Channel string `json:"channel" env:"FRAMEGATE_HEARTBEAT_CHANNEL"`
	ChatID  string `json:"chat_id" env:"FRAMEGATE_HEARTBEAT_CHAT_ID"`
	Message string `json:"message" env:"FRAMEGATE_HEARTBEAT_MESSAGE"`
}

type LoggingConfig struct {
	Level           string `json:"level" env:"FRAMEGATE_LOGGING_LEVEL"`
	FileEnabled     bool   `json:"file_enabled" env:"FRAMEGATE_LOGGING_FILE_ENABLED"`
	FilePath        string `json:"file_path" env:"FRAMEGATE_LOGGING_FILE_PATH"`
	RotationEnabled bool   `json:"rotation_enabled" env:"FRAMEGATE_LOGGING_ROTATION_ENABLED"`
	MaxAgeDays      int    `json:"max_age_days" env:"FRAMEGATE_LOGGING_MAX_AGE_DAYS"`
	MaxSizeMB       int    `json:"max_size_mb" env:"FRAMEGATE_LOGGING_MAX_SIZE_MB"`
}

func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			BotFramework: BotFrameworkConfig{
				Enabled:     false,
				LoginHost:   "https://login.microsoftonline.com",
				WebhookHost: "0.0.0.0",
				WebhookPort: 3978,
				AllowFrom:   FlexibleStringSlice{},
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    18890,
		},
		Pipeline: PipelineConfig{
			Echo: false,
		},
		Heartbeat: HeartbeatConfig{
			Enabled: false,
			Cron:    "*/30 * * * *",
			Message: "framegate heartbeat",
		},
		Logging: LoggingConfig{
			Level:           "info",
			FileEnabled:     true,
			FilePath:        "~/.framegate/framegate.log",
			RotationEnabled: true,
			MaxAgeDays:      7,
			MaxSizeMB:       50,
		},
	}
}

// LoadConfig reads the JSON config at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
