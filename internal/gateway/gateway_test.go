// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GermanBionicSystems/agrinode/telemetry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	lines  []string
	closed bool
}

func (s *fakeSource) ReadLines(ctx context.Context, fn func(string)) error {
	for _, l := range s.lines {
		fn(l)
	}
	return io.EOF
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	got    []Telemetry
	err    error
	want   int
	cancel context.CancelFunc
}

func (p *fakePublisher) PublishTelemetry(t Telemetry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.got = append(p.got, t)
	if len(p.got) == p.want && p.cancel != nil {
		p.cancel()
	}
	return nil
}

func newGateway(t *testing.T, open func() (LineSource, error), pub Publisher, maxRetries uint64) *Gateway {
	t.Helper()
	g, err := New(open, pub, &Opts{
		NodeID:      "field-1",
		MaxRetries:  maxRetries,
		ReopenDelay: time.Millisecond,
		BackOff:     func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Logger:      discard,
	})
	require.NoError(t, err)
	g.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestHandleLine(t *testing.T) {
	pub := &fakePublisher{}
	g := newGateway(t, nil, pub, 0)

	g.HandleLine("26,60,2048,45")
	g.HandleLine("DHT: 26C 60% | Light(Raw): 2048 | Soil: 45%")
	g.HandleLine("garbage")

	require.Len(t, pub.got, 1)
	got := pub.got[0]
	assert.Equal(t, "field-1", got.NodeID)
	assert.Equal(t, 26.0, got.Temperature)
	assert.Equal(t, 60.0, got.Humidity)
	assert.Equal(t, uint16(2048), got.LightRaw)
	assert.Equal(t, telemetry.Lux(2048), got.LightLux)
	assert.Equal(t, uint8(45), got.SoilPercent)
	assert.Equal(t, Stats{Received: 3, Malformed: 2, Published: 1}, g.Stats())
}

func TestHandleLinePublishError(t *testing.T) {
	g := newGateway(t, nil, &fakePublisher{err: errNotConnected}, 0)
	g.HandleLine("1,2,3,4")
	assert.Equal(t, Stats{Received: 1, Failed: 1}, g.Stats())
}

func TestRunReopens(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{want: 3, cancel: cancel}
	var mu sync.Mutex
	var sources []*fakeSource
	attempts := 0
	open := func() (LineSource, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts%2 == 1 {
			return nil, errors.New("no such device")
		}
		s := &fakeSource{lines: []string{"20,50,100,10"}}
		sources = append(sources, s)
		return s, nil
	}
	g := newGateway(t, open, pub, 0)

	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, len(sources), 3)
	for _, s := range sources {
		assert.True(t, s.closed)
	}
	assert.GreaterOrEqual(t, g.Stats().Published, uint64(3))
}

func TestRunGivesUp(t *testing.T) {
	attempts := 0
	open := func() (LineSource, error) {
		attempts++
		return nil, errors.New("no such device")
	}
	g := newGateway(t, open, &fakePublisher{}, 2)
	err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such device")
	assert.Equal(t, 3, attempts)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := newGateway(t, func() (LineSource, error) { return nil, errors.New("unplugged") }, &fakePublisher{}, 0)
	assert.NoError(t, g.Run(ctx))
}

func TestNew(t *testing.T) {
	_, err := New(nil, &fakePublisher{}, nil)
	assert.Error(t, err)
	_, err = New(nil, &fakePublisher{}, &Opts{})
	assert.Error(t, err)
	g, err := New(nil, &fakePublisher{}, &Opts{NodeID: "a"})
	require.NoError(t, err)
	assert.Equal(t, time.Second, g.opts.ReopenDelay)
	assert.NotNil(t, g.opts.BackOff())
}

func TestTelemetryJSON(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	tm := NewTelemetry("field-1", telemetry.Frame{TempInt: 26, HumidityInt: 60, LightRaw: 0, SoilPercent: 45}, ts)
	b, err := json.Marshal(tm)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"node_id": "field-1",
		"timestamp": "2026-05-01T10:00:00Z",
		"temperature_c": 26,
		"humidity_pct": 60,
		"light_raw": 0,
		"light_lux": 0,
		"soil_pct": 45,
		"states": {
			"temperature": "perfect",
			"humidity": "perfect",
			"soil": "moist",
			"light": "too_dark"
		}
	}`, string(b))
	assert.Equal(t, "nodes/field-1/telemetry", Topic("field-1"))

	tm = NewTelemetry("field-1", telemetry.Frame{TempInt: 36, HumidityInt: 25, LightRaw: 4095, SoilPercent: 10}, ts)
	assert.Equal(t, telemetry.States{
		Temperature: telemetry.TooHot,
		Humidity:    telemetry.TooDry,
		Soil:        telemetry.BoneDry,
		Light:       telemetry.HighLight,
	}, tm.States)
}
