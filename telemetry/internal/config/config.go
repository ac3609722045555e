package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grindscale/devmock/internal/mirror"
)

// Default values for the telemetry mock.
const (
	DefaultListen        = "localhost:8765"
	DefaultFrameInterval = 400 * time.Millisecond
	DefaultWrapInterval  = time.Second
	DefaultLogLevel      = "info"
	DefaultMQTTClientID  = "devmock-telemetry"
	DefaultMQTTTopic     = "grinder/graph"
)

// Config holds the `telemetry:` section of the YAML file. Other top-level
// keys are ignored so one file can configure both mocks.
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig holds all telemetry mock settings.
type TelemetryConfig struct {
	// Listen is the host:port the WebSocket listener binds to.
	Listen string `yaml:"listen"`

	// FrameInterval is the pause between consecutive frames.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// WrapInterval is the pause after the finalize frame, before the
	// sequence restarts.
	WrapInterval time.Duration `yaml:"wrap_interval"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// MQTT mirrors every frame to a broker when Broker is set.
	MQTT mirror.Config `yaml:"mqtt"`
}

// Level returns the slog level named by LogLevel.
func (c TelemetryConfig) Level() slog.Level {
	return parseLevel(c.LogLevel)
}

// Load reads the config file at path. An empty path yields the defaults, which
// match the mock's fixed localhost:8765 contract.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("telemetry config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("telemetry config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Telemetry: TelemetryConfig{
			Listen:        DefaultListen,
			FrameInterval: DefaultFrameInterval,
			WrapInterval:  DefaultWrapInterval,
			LogLevel:      DefaultLogLevel,
			MQTT: mirror.Config{
				ClientID: DefaultMQTTClientID,
				Topic:    DefaultMQTTTopic,
			},
		},
	}
}

func validate(cfg *Config) error {
	t := cfg.Telemetry
	if _, _, err := net.SplitHostPort(t.Listen); err != nil {
		return fmt.Errorf("telemetry.listen %q: %w", t.Listen, err)
	}
	if t.FrameInterval <= 0 {
		return fmt.Errorf("telemetry.frame_interval must be positive")
	}
	if t.WrapInterval <= 0 {
		return fmt.Errorf("telemetry.wrap_interval must be positive")
	}
	switch strings.ToLower(t.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.log_level %q unknown: want debug|info|warn|error", t.LogLevel)
	}
	if t.MQTT.Enabled() && t.MQTT.Topic == "" {
		return fmt.Errorf("telemetry.mqtt.topic is required when a broker is set")
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
