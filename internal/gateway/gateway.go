// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gateway forwards the uplink frames of a sensor node, received on a
// serial link, to an MQTT broker as JSON.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GermanBionicSystems/agrinode/telemetry"
)

// LineSource delivers the received uplink lines.
//
// serialport.Port implements it.
type LineSource interface {
	ReadLines(ctx context.Context, fn func(line string)) error
	Close() error
}

// Publisher sends one telemetry document.
type Publisher interface {
	PublishTelemetry(t Telemetry) error
}

// Opts holds the configuration options for a Gateway.
type Opts struct {
	// NodeID names the node on the other end of the link.
	NodeID string
	// MaxRetries bounds the attempts to open the link. 0 retries forever.
	MaxRetries uint64
	// ReopenDelay is the pause after the link was lost. Default is 1s.
	ReopenDelay time.Duration
	// BackOff returns the policy between failed open attempts. Default is
	// exponential.
	BackOff func() backoff.BackOff
	Logger  *slog.Logger
}

// Stats are counters of a running Gateway.
type Stats struct {
	Received  uint64
	Malformed uint64
	Published uint64
	Failed    uint64
}

// Gateway bridges one node link to a Publisher.
type Gateway struct {
	open func() (LineSource, error)
	pub  Publisher
	opts Opts
	log  *slog.Logger
	now  func() time.Time

	received  atomic.Uint64
	malformed atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

// New returns a Gateway reading from the sources returned by open.
func New(open func() (LineSource, error), pub Publisher, opts *Opts) (*Gateway, error) {
	if opts == nil || opts.NodeID == "" {
		return nil, fmt.Errorf("gateway: a node id is required")
	}
	g := &Gateway{open: open, pub: pub, opts: *opts, log: opts.Logger, now: time.Now}
	if g.opts.ReopenDelay <= 0 {
		g.opts.ReopenDelay = time.Second
	}
	if g.opts.BackOff == nil {
		g.opts.BackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		}
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g, nil
}

// Run forwards frames until ctx is canceled. A lost link is reopened. It
// returns an error only when the link cannot be opened within
// Opts.MaxRetries attempts.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		src, err := g.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		err = src.ReadLines(ctx, g.HandleLine)
		_ = src.Close()
		if ctx.Err() != nil {
			return nil
		}
		g.log.Warn("uplink lost, reopening", "error", err, "delay", g.opts.ReopenDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(g.opts.ReopenDelay):
		}
	}
}

func (g *Gateway) connect(ctx context.Context) (LineSource, error) {
	var src LineSource
	b := g.opts.BackOff()
	if g.opts.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, g.opts.MaxRetries)
	}
	err := backoff.Retry(func() error {
		s, err := g.open()
		if err != nil {
			g.log.Warn("failed to open uplink", "error", err)
			return err
		}
		src = s
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("gateway: open uplink: %w", err)
	}
	g.log.Info("uplink open", "node_id", g.opts.NodeID)
	return src, nil
}

// HandleLine decodes and publishes one received line. Lines that are not
// uplink frames are counted and dropped.
func (g *Gateway) HandleLine(line string) {
	g.received.Add(1)
	f, err := telemetry.ParseUplink(line)
	if err != nil {
		g.malformed.Add(1)
		g.log.Debug("dropping line", "line", line, "error", err)
		return
	}
	t := NewTelemetry(g.opts.NodeID, f, g.now())
	if err := g.pub.PublishTelemetry(t); err != nil {
		g.failed.Add(1)
		g.log.Error("failed to publish telemetry", "node_id", g.opts.NodeID, "error", err)
		return
	}
	g.published.Add(1)
}

// Stats returns a snapshot of the counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Received:  g.received.Load(),
		Malformed: g.malformed.Load(),
		Published: g.published.Load(),
		Failed:    g.failed.Load(),
	}
}
