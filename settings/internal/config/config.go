package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/grindscale/devmock/internal/mirror"
)

// Default values for the settings mock.
const (
	DefaultListen       = "localhost:8765"
	DefaultLogLevel     = "info"
	DefaultMQTTClientID = "devmock-settings"
	DefaultMQTTTopic    = "grinder/settings"
)

// Config holds the `settings:` section of the YAML file.
type Config struct {
	Settings SettingsConfig `yaml:"settings"`
}

// SettingsConfig holds all settings mock options.
type SettingsConfig struct {
	// Listen is the host:port the WebSocket listener binds to.
	Listen string `yaml:"listen"`

	// StrictSet only accepts set commands that start with "set:". When false,
	// any message containing "set" is parsed as a set command.
	StrictSet bool `yaml:"strict_set"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// MQTT publishes the full settings map, retained, after every change.
	MQTT mirror.Config `yaml:"mqtt"`
}

// Level returns the slog level named by LogLevel.
func (c SettingsConfig) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads the config file at path; an empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("settings config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("settings config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Settings: SettingsConfig{
			Listen:   DefaultListen,
			LogLevel: DefaultLogLevel,
			MQTT: mirror.Config{
				ClientID: DefaultMQTTClientID,
				Topic:    DefaultMQTTTopic,
			},
		},
	}
}

func validate(cfg *Config) error {
	s := cfg.Settings
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return fmt.Errorf("settings.listen %q: %w", s.Listen, err)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("settings.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	if s.MQTT.Enabled() && s.MQTT.Topic == "" {
		return fmt.Errorf("settings.mqtt.topic is required when a broker is set")
	}
	return nil
}
