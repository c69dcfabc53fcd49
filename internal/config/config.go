// Package config loads the switch settings from a YAML file merged with
// SWITCH_-prefixed environment variables, then validates the result before
// anything is wired off it.
package config

import (
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings is the full runtime configuration.
type Settings struct {
	Server     ServerSettings              `mapstructure:"server"`
	Connectors map[string]ConnectorSetting `mapstructure:"connectors" validate:"required,dive"`
	Rollout    RolloutSettings             `mapstructure:"rollout"`
	Unified    UnifiedSettings             `mapstructure:"unified"`
	Tracker    TrackerSettings             `mapstructure:"tracker"`
	Events     EventSettings               `mapstructure:"events"`
}

type ServerSettings struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ConnectorSetting is the per-connector endpoint configuration; merchant
// credentials live in storage, not here.
type ConnectorSetting struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Sandbox bool   `mapstructure:"sandbox"`
}

// RolloutSettings carries the unified-path rollout fractions, keyed
// merchant:connector:payment_method:flow. Fractions stay strings so a
// malformed value degrades that key to the legacy path instead of
// failing the whole load.
type RolloutSettings struct {
	Fractions map[string]string `mapstructure:"fractions"`
	Guards    []GuardSetting    `mapstructure:"guards" validate:"dive"`
}

type GuardSetting struct {
	Name       string `mapstructure:"name" validate:"required"`
	Expression string `mapstructure:"expression" validate:"required"`
}

type UnifiedSettings struct {
	Target         string        `mapstructure:"target"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type TrackerSettings struct {
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
}

type EventSettings struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Validate checks the loaded settings.
func (s *Settings) Validate() error {
	return validator.New().Struct(s)
}

// Load reads the settings from the given directory (file "switch.yaml"),
// merges environment overrides and validates.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigName("switch")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AddConfigPath(".")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("unified.connect_timeout", 2*time.Second)
	v.SetDefault("tracker.claim_interval", 10*time.Second)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("config: no config file found: %v (relying on defaults and env)", err)
	}

	v.SetEnvPrefix("SWITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
