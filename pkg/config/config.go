package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

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

	// Try []interface{} to handle mixed types
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
	Backend   BackendConfig   `json:"backend"`
	Chat      ChatConfig      `json:"chat"`
	Storage   StorageConfig   `json:"storage"`
	Channels  ChannelsConfig  `json:"channels"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	mu        sync.RWMutex
}

type BackendConfig struct {
	BaseURL        string `json:"base_url" env:"JARVISCTL_BACKEND_BASE_URL"`
	Proxy          string `json:"proxy,omitempty" env:"JARVISCTL_BACKEND_PROXY"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"JARVISCTL_BACKEND_TIMEOUT_SECONDS"`
}

type ChatConfig struct {
	Mode                string `json:"mode" env:"JARVISCTL_CHAT_MODE"`
	Model               string `json:"model" env:"JARVISCTL_CHAT_MODEL"`
	MemoryMode          string `json:"memory_mode" env:"JARVISCTL_CHAT_MEMORY_MODE"`
	CitationEnforcement bool   `json:"citation_enforcement" env:"JARVISCTL_CHAT_CITATION_ENFORCEMENT"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir" env:"JARVISCTL_STORAGE_DATA_DIR"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"JARVISCTL_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"JARVISCTL_CHANNELS_DISCORD_ALLOW_FROM"`
}

type HeartbeatConfig struct {
	Enabled  bool   `json:"enabled" env:"JARVISCTL_HEARTBEAT_ENABLED"`
	Interval int    `json:"interval" env:"JARVISCTL_HEARTBEAT_INTERVAL"` // minutes, min 1
	Cron     string `json:"cron,omitempty" env:"JARVISCTL_HEARTBEAT_CRON"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 60,
		},
		Chat: ChatConfig{
			Mode:                "mixed",
			Model:               "balanced",
			MemoryMode:          "short-term",
			CitationEnforcement: false,
		},
		Storage: StorageConfig{
			DataDir: "~/.jarvisctl",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: 15, // default 15 minutes
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
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
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) DataDirPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.DataDir)
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDirPath(), "conversations.db")
}

func (c *Config) BackendTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Backend.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
