// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the settings of the node and gateway binaries.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when AGRINODE_CONFIG is not set.
const DefaultPath = "agrinode.yaml"

// minPeriod is the shortest interval the humidity sensor tolerates between
// two reads.
const minPeriod = 2 * time.Second

// Config is the application configuration.
type Config struct {
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	Node    NodeConfig    `yaml:"node"`
	Serial  SerialConfig  `yaml:"serial"`
	Metrics MetricsConfig `yaml:"metrics"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// NodeConfig describes the sensor node hardware.
type NodeConfig struct {
	SensorPin    string        `yaml:"sensor_pin"`
	HeartbeatPin string        `yaml:"heartbeat_pin"` // empty disables the LED
	ADCDevice    string        `yaml:"adc_device"`
	ADCBits      int           `yaml:"adc_bits"`
	LightChannel int           `yaml:"light_channel"`
	SoilChannel  int           `yaml:"soil_channel"`
	Period       time.Duration `yaml:"period"`
	Settle       time.Duration `yaml:"settle"`
	// ConversionTimeout bounds a single analog conversion.
	ConversionTimeout time.Duration `yaml:"conversion_timeout"`
	// EdgeTimeout bounds each wait for a sensor line transition.
	EdgeTimeout time.Duration `yaml:"edge_timeout"`
}

// SerialConfig contains the node serial links.
type SerialConfig struct {
	UplinkPort string `yaml:"uplink_port"`
	UplinkBaud int    `yaml:"uplink_baud"`
	DebugPort  string `yaml:"debug_port"`
	DebugBaud  int    `yaml:"debug_baud"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables
// it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig configures the gateway broker connection.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	NodeID   string `yaml:"node_id"`
	QoS      byte   `yaml:"qos"`
}

// GatewayConfig is the receiving end of the uplink.
type GatewayConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// MaxRetries bounds reconnection attempts of the serial port and the
	// broker. 0 retries forever.
	MaxRetries uint64 `yaml:"max_retries"`
}

// Default returns the configuration of the reference board.
func Default() *Config {
	return &Config{
		AppEnv:   "dev",
		LogLevel: "info",
		Node: NodeConfig{
			SensorPin:         "GPIO8",
			HeartbeatPin:      "GPIO13",
			ADCDevice:         "iio:device0",
			ADCBits:           12,
			LightChannel:      0,
			SoilChannel:       1,
			Period:            2 * time.Second,
			Settle:            20 * time.Millisecond,
			ConversionTimeout: 100 * time.Millisecond,
			EdgeTimeout:       500 * time.Microsecond,
		},
		Serial: SerialConfig{
			UplinkPort: "/dev/ttyAMA1",
			UplinkBaud: 9600,
			DebugPort:  "/dev/ttyAMA0",
			DebugBaud:  115200,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
		},
		MQTT: MQTTConfig{
			Broker:   "localhost",
			Port:     1883,
			ClientID: "agrinode-gateway",
			NodeID:   "field-1",
			QoS:      1,
		},
		Gateway: GatewayConfig{
			Port: "/dev/ttyUSB0",
			Baud: 9600,
		},
	}
}

// Load reads filename over the defaults then applies the environment. A
// missing file is not an error.
func Load(filename string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by AGRINODE_CONFIG, or DefaultPath.
func LoadFromEnv() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("AGRINODE_CONFIG"))
	if path == "" {
		path = DefaultPath
	}
	return Load(path)
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("APP_ENV")); v != "" {
		c.AppEnv = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("MQTT_BROKER")); v != "" {
		c.MQTT.Broker = v
	}
	if v := strings.TrimSpace(os.Getenv("MQTT_PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MQTT_PORT %q: %w", v, err)
		}
		c.MQTT.Port = p
	}
	if v := strings.TrimSpace(os.Getenv("NODE_ID")); v != "" {
		c.MQTT.NodeID = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.AppEnv {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid app_env %q (allowed: dev, prod)", c.AppEnv)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	n := &c.Node
	if n.SensorPin == "" {
		return errors.New("node.sensor_pin is required")
	}
	if n.ADCDevice == "" {
		return errors.New("node.adc_device is required")
	}
	if n.ADCBits < 1 || n.ADCBits > 24 {
		return fmt.Errorf("node.adc_bits must be within [1, 24], got %d", n.ADCBits)
	}
	if n.LightChannel < 0 || n.LightChannel > 255 || n.SoilChannel < 0 || n.SoilChannel > 255 {
		return fmt.Errorf("node channels must be within [0, 255], got %d and %d", n.LightChannel, n.SoilChannel)
	}
	if n.LightChannel == n.SoilChannel {
		return fmt.Errorf("node.light_channel and node.soil_channel are both %d", n.LightChannel)
	}
	if n.Period < minPeriod {
		return fmt.Errorf("node.period must be at least %v, got %v", minPeriod, n.Period)
	}
	if n.Settle <= 0 || n.ConversionTimeout <= 0 || n.EdgeTimeout < time.Microsecond {
		return errors.New("node.settle, node.conversion_timeout and node.edge_timeout must be positive")
	}
	if c.Serial.UplinkBaud <= 0 || c.Serial.DebugBaud <= 0 || c.Gateway.Baud <= 0 {
		return errors.New("baud rates must be positive")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("invalid mqtt.port %d", c.MQTT.Port)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos %d", c.MQTT.QoS)
	}
	if c.MQTT.NodeID == "" {
		return errors.New("mqtt.node_id is required")
	}
	return nil
}

// Level returns the slog level of LogLevel.
func (c *Config) Level() slog.Level {
	l, _ := parseLogLevel(c.LogLevel)
	return l
}

// Save writes the configuration as YAML.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
