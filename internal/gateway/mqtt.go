// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/GermanBionicSystems/agrinode/internal/config"
)

const publishTimeout = 5 * time.Second

var errNotConnected = errors.New("mqtt client not connected")

// Client publishes telemetry to an MQTT broker.
type Client struct {
	client     mqtt.Client
	qos        byte
	maxRetries uint64
	logger     *slog.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClient returns a Client for the broker in cfg. maxRetries bounds
// Connect; 0 retries until the context is canceled.
func NewClient(cfg config.MQTTConfig, maxRetries uint64, logger *slog.Logger) *Client {
	c := &Client{qos: cfg.QoS, maxRetries: maxRetries, logger: logger, stopCh: make(chan struct{})}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})
	c.client = mqtt.NewClient(opts)
	return c
}

// Connect establishes the broker connection, retrying with exponential
// backoff.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return errors.New("mqtt client stopped")
	default:
	}
	if c.IsConnected() {
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	var b backoff.BackOff = bo
	if c.maxRetries > 0 {
		b = backoff.WithMaxRetries(b, c.maxRetries)
	}
	err := backoff.Retry(func() error {
		token := c.client.Connect()
		for !token.WaitTimeout(200 * time.Millisecond) {
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			case <-c.stopCh:
				return backoff.Permanent(errors.New("mqtt client stopped"))
			default:
			}
		}
		if err := token.Error(); err != nil {
			c.logger.Warn("mqtt connect failed", "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.setConnected(true)
	return nil
}

// PublishTelemetry publishes t on the topic of its node.
func (c *Client) PublishTelemetry(t Telemetry) error {
	if !c.IsConnected() {
		return errNotConnected
	}
	topic := Topic(t.NodeID)
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	token := c.client.Publish(topic, c.qos, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}
	c.logger.Debug("published telemetry", "topic", topic)
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client. It is idempotent.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.client.Disconnect(250)
	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
