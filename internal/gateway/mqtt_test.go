// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GermanBionicSystems/agrinode/internal/config"
)

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
func (t *doneToken) Error() error { return t.err }

type message struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeBroker implements the parts of mqtt.Client the gateway uses.
type fakeBroker struct {
	mqtt.Client
	mu          sync.Mutex
	connectErrs []error
	connects    int
	connected   bool
	published   []message
}

func (b *fakeBroker) Connect() mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	if len(b.connectErrs) != 0 {
		err := b.connectErrs[0]
		b.connectErrs = b.connectErrs[1:]
		return &doneToken{err: err}
	}
	b.connected = true
	return &doneToken{}
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, message{topic, qos, payload.([]byte)})
	return &doneToken{}
}

func newTestClient(b *fakeBroker, maxRetries uint64) *Client {
	cfg := config.Default().MQTT
	c := NewClient(cfg, maxRetries, discard)
	c.client = b
	return c
}

func TestClientPublish(t *testing.T) {
	b := &fakeBroker{}
	c := newTestClient(b, 1)

	err := c.PublishTelemetry(Telemetry{NodeID: "n1"})
	assert.ErrorIs(t, err, errNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	require.NoError(t, c.PublishTelemetry(Telemetry{NodeID: "n1", Temperature: 21, SoilPercent: 40}))

	require.Len(t, b.published, 1)
	msg := b.published[0]
	assert.Equal(t, "nodes/n1/telemetry", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	var got Telemetry
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, 21.0, got.Temperature)
	assert.Equal(t, uint8(40), got.SoilPercent)

	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Connect(context.Background()))
}

func TestClientConnectRetries(t *testing.T) {
	refused := errors.New("connection refused")
	b := &fakeBroker{connectErrs: []error{refused, refused}}
	c := newTestClient(b, 5)
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 3, b.connects)
}

func TestClientConnectGivesUp(t *testing.T) {
	refused := errors.New("connection refused")
	b := &fakeBroker{connectErrs: []error{refused, refused, refused}}
	c := newTestClient(b, 1)
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 2, b.connects)
	assert.False(t, c.IsConnected())
}
