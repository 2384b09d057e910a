// Package config loads the follower configuration: defaults, then an optional
// YAML file, then LIBREFOLLOW_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/st-keller/librefollow/transport"
	"github.com/st-keller/librefollow/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIBREFOLLOW_"

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Display   DisplayConfig   `yaml:"display"`
	Status    StatusConfig    `yaml:"status"`
	Log       LogConfig       `yaml:"log"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

// ServerConfig selects the upstream server and unit.
type ServerConfig struct {
	URL     string `yaml:"url"`
	Unit    string `yaml:"unit"`    // mgdl or mmol
	Timeout string `yaml:"timeout"` // per request, e.g. "15s"
}

// TransportConfig selects the HTTP protocol and optional mTLS material.
type TransportConfig struct {
	Mode     string `yaml:"mode"` // http1, h2, h2c
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
	CAPath   string `yaml:"ca_path"`
}

// DisplayConfig controls how times and values are rendered.
type DisplayConfig struct {
	TimeLayout string `yaml:"time_layout"`
	TimeZone   string `yaml:"time_zone"`
	Language   string `yaml:"language"`
}

// StatusConfig configures the status HTTP server. An empty Addr disables it.
type StatusConfig struct {
	Addr      string `yaml:"addr"`
	AccessLog bool   `yaml:"access_log"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Recent int    `yaml:"recent"` // entries kept for /debug/logs
}

// MQTTConfig enables the MQTT sink when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// KafkaConfig enables the Kafka sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8080",
			Unit:    "mgdl",
			Timeout: "15s",
		},
		Transport: TransportConfig{Mode: "http1"},
		Status:    StatusConfig{Addr: "127.0.0.1:9870"},
		Log:       LogConfig{Level: "info", Format: "text", Recent: 100},
		MQTT:      MQTTConfig{ClientID: "librefollow", Topic: "librefollow/reading"},
		Kafka:     KafkaConfig{Topic: "librefollow.readings"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SERVER_URL":     &c.Server.URL,
		"UNIT":           &c.Server.Unit,
		"TIMEOUT":        &c.Server.Timeout,
		"TRANSPORT":      &c.Transport.Mode,
		"CERT_PATH":      &c.Transport.CertPath,
		"KEY_PATH":       &c.Transport.KeyPath,
		"CA_PATH":        &c.Transport.CAPath,
		"TIME_LAYOUT":    &c.Display.TimeLayout,
		"TIME_ZONE":      &c.Display.TimeZone,
		"LANGUAGE":       &c.Display.Language,
		"STATUS_ADDR":    &c.Status.Addr,
		"LOG_LEVEL":      &c.Log.Level,
		"LOG_FORMAT":     &c.Log.Format,
		"MQTT_BROKER":    &c.MQTT.Broker,
		"MQTT_CLIENT_ID": &c.MQTT.ClientID,
		"MQTT_TOPIC":     &c.MQTT.Topic,
		"MQTT_USERNAME":  &c.MQTT.Username,
		"MQTT_PASSWORD":  &c.MQTT.Password,
		"KAFKA_TOPIC":    &c.Kafka.Topic,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "MQTT_QOS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMQTT_QOS: %w", EnvPrefix, err)
		}
		c.MQTT.QoS = n
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks every field that can be checked without I/O.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url required")
	}
	if _, err := types.ParseUnit(c.Server.Unit); err != nil {
		return fmt.Errorf("server.unit: %w", err)
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	if _, err := transport.ParseMode(c.Transport.Mode); err != nil {
		return fmt.Errorf("transport.mode: %w", err)
	}
	if (c.Transport.CertPath == "") != (c.Transport.KeyPath == "") {
		return fmt.Errorf("transport.cert_path and transport.key_path must be set together")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic required when mqtt.broker is set")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic required when kafka.brokers is set")
	}
	return nil
}

// Unit returns the parsed server unit.
func (c *Config) Unit() types.Unit {
	u, _ := types.ParseUnit(c.Server.Unit)
	return u
}

// RequestTimeout parses server.timeout.
func (c *Config) RequestTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.Timeout)
	if err != nil {
		return 0, fmt.Errorf("server.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("server.timeout must be positive")
	}
	return d, nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
