package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/st-keller/librefollow/types"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.URL != "http://localhost:8080" || c.Unit() != types.MgPerDl {
		t.Fatalf("unexpected defaults %+v", c.Server)
	}
	if d, _ := c.RequestTimeout(); d != 15*time.Second {
		t.Fatalf("timeout = %v", d)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "librefollow.yaml")
	yaml := `
server:
  url: https://glucose.example.com
  unit: mmol
  timeout: 5s
display:
  time_zone: Europe/Berlin
  language: de
kafka:
  brokers: [kafka-1:9092]
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIBREFOLLOW_SERVER_URL", "http://10.0.0.5:8080")
	t.Setenv("LIBREFOLLOW_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("LIBREFOLLOW_MQTT_QOS", "1")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.URL != "http://10.0.0.5:8080" {
		t.Errorf("env must override file, url = %q", c.Server.URL)
	}
	if c.Unit() != types.MmolPerL {
		t.Errorf("unit = %v", c.Unit())
	}
	if c.Display.TimeZone != "Europe/Berlin" || c.Display.Language != "de" {
		t.Errorf("display = %+v", c.Display)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("brokers = %v", c.Kafka.Brokers)
	}
	if c.MQTT.QoS != 1 {
		t.Errorf("qos = %d", c.MQTT.QoS)
	}
	if c.Log.Format != "text" {
		t.Errorf("unset fields must keep defaults, format = %q", c.Log.Format)
	}
	if lvl, _ := c.LogLevel(); lvl != slog.LevelDebug {
		t.Errorf("level = %v", lvl)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "missing url", modify: func(c *Config) { c.Server.URL = "" }},
		{name: "bad unit", modify: func(c *Config) { c.Server.Unit = "mmHg" }},
		{name: "bad timeout", modify: func(c *Config) { c.Server.Timeout = "soon" }},
		{name: "zero timeout", modify: func(c *Config) { c.Server.Timeout = "0s" }},
		{name: "bad transport", modify: func(c *Config) { c.Transport.Mode = "quic" }},
		{name: "cert without key", modify: func(c *Config) { c.Transport.CertPath = "/certs/client.pem" }},
		{name: "bad level", modify: func(c *Config) { c.Log.Level = "loud" }},
		{name: "bad format", modify: func(c *Config) { c.Log.Format = "xml" }},
		{name: "mqtt qos", modify: func(c *Config) { c.MQTT.Broker = "tcp://b:1883"; c.MQTT.QoS = 3 }},
		{name: "kafka topic", modify: func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Topic = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("LIBREFOLLOW_MQTT_QOS", "high")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric qos")
	}
}
