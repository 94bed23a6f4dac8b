// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package node runs the acquisition cycle of a field sensor node.
//
// One cycle reads the humidity sensor, samples the light then the soil
// channel, and writes the uplink and debug frames. Run repeats it at a fixed
// period and toggles a heartbeat LED after each cycle.
//
// Failures of the humidity sensor and analog conversion timeouts are
// recovered: the value of the previous cycle is sent again and flagged stale
// in the returned telemetry.Frame. An analog configuration failure is fatal;
// the node stops emitting frames and reports ErrHalted.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/GermanBionicSystems/agrinode/adc"
	"github.com/GermanBionicSystems/agrinode/dht11"
	"github.com/GermanBionicSystems/agrinode/telemetry"
	"periph.io/x/conn/v3/gpio"
)

// Banner is written on the debug link when Run starts.
const Banner = "System Booting...\r\n"

// ErrHalted is returned once the node stopped on a fatal error.
var ErrHalted = errors.New("node: halted")

// Sensor is the humidity and temperature source.
//
// dht11.Dev implements it.
type Sensor interface {
	Read() (dht11.Reading, error)
}

// Opts holds the configuration options for a Node.
type Opts struct {
	// Light and Soil are the analog channels, sampled in this order. Both
	// zero selects the default channels.
	Light adc.Channel
	Soil  adc.Channel
	// Period is the cycle period. Default is 2s.
	Period time.Duration
	// Heartbeat is toggled after each cycle. Optional.
	Heartbeat gpio.PinOut
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics defaults to unregistered collectors.
	Metrics *Metrics
}

// DefaultOpts holds the default configuration options for a Node.
var DefaultOpts = Opts{
	Light:  0,
	Soil:   1,
	Period: 2 * time.Second,
}

// Node is a sensor node.
type Node struct {
	sensor  Sensor
	sampler *adc.Sampler
	uplink  io.Writer
	debug   io.Writer
	opts    Opts
	log     *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	last    telemetry.Frame
	soilRaw uint16
	led     gpio.Level
	halted  error
}

// New returns a Node reading sensor and sampler and writing frames to
// uplink and debug.
func New(sensor Sensor, sampler *adc.Sampler, uplink, debug io.Writer, opts *Opts) (*Node, error) {
	if sensor == nil || sampler == nil {
		return nil, errors.New("node: sensor and sampler are required")
	}
	if uplink == nil || debug == nil {
		return nil, errors.New("node: uplink and debug writers are required")
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
		if o.Light == 0 && o.Soil == 0 {
			o.Light, o.Soil = DefaultOpts.Light, DefaultOpts.Soil
		}
		if o.Period == 0 {
			o.Period = DefaultOpts.Period
		}
	}
	if o.Period < 0 {
		return nil, fmt.Errorf("node: invalid period %s", o.Period)
	}
	if o.Light == o.Soil {
		return nil, fmt.Errorf("node: light and soil share channel %d", o.Light)
	}
	n := &Node{
		sensor:  sensor,
		sampler: sampler,
		uplink:  uplink,
		debug:   debug,
		opts:    o,
		log:     o.Logger,
		metrics: o.Metrics,
	}
	if n.log == nil {
		n.log = slog.Default()
	}
	if n.metrics == nil {
		n.metrics = NewMetrics(nil)
	}
	return n, nil
}

// Cycle runs one acquisition cycle and returns the frame it transmitted.
//
// Write errors on the links are logged and do not fail the cycle. After a
// fatal error every call returns an error wrapping ErrHalted and the cause.
func (n *Node) Cycle() (telemetry.Frame, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.halted != nil {
		return n.last, n.halted
	}

	f := n.last
	f.SensorStale, f.LightStale, f.SoilStale = false, false, false

	r, err := n.sensor.Read()
	if err != nil {
		f.SensorStale = true
		n.metrics.SensorFailures.WithLabelValues(r.Status.String()).Inc()
		n.log.Warn("humidity sensor read failed, reusing previous values", "status", r.Status, "error", err)
	} else {
		f.TempInt = r.TempInt
		f.HumidityInt = r.HumidityInt
		f.ChecksumOK = r.ChecksumValid()
		if !f.ChecksumOK {
			n.metrics.ChecksumMismatches.Inc()
			n.log.Warn("humidity sensor checksum mismatch", "reading", r.String())
		}
	}

	res, err := n.sampler.Sequence(n.opts.Light, n.opts.Soil)
	if err != nil {
		n.halted = fmt.Errorf("%w: %w", ErrHalted, err)
		n.metrics.Halted.Set(1)
		n.log.Error("analog configuration failed, halting", "error", err)
		return n.last, n.halted
	}
	for _, rs := range res {
		stale := rs.Err != nil
		if stale {
			n.metrics.ConversionFailures.WithLabelValues(strconv.Itoa(int(rs.Sample.Channel))).Inc()
			n.log.Warn("analog conversion failed, reusing previous value", "channel", rs.Sample.Channel, "error", rs.Err)
		}
		switch rs.Sample.Channel {
		case n.opts.Light:
			f.LightStale = stale
			if !stale {
				f.LightRaw = rs.Sample.Raw
			}
		case n.opts.Soil:
			f.SoilStale = stale
			if !stale {
				n.soilRaw = rs.Sample.Raw
			}
		}
	}
	f.SoilPercent = telemetry.SoilPercent(n.soilRaw)

	n.transmit("uplink", n.uplink, f.Uplink())
	n.transmit("debug", n.debug, f.Debug())

	n.last = f
	n.metrics.Cycles.Inc()
	n.metrics.observe(&f)
	n.log.Debug("cycle", "frame", f.String(), "stale", f.Stale(), "checksum_ok", f.ChecksumOK)
	return f, nil
}

func (n *Node) transmit(link string, w io.Writer, b []byte) {
	if _, err := w.Write(b); err != nil {
		n.metrics.TransmitErrors.WithLabelValues(link).Inc()
		n.log.Error("transmit failed", "link", link, "error", err)
	}
}

// Run writes the boot banner on the debug link then runs Cycle every
// Opts.Period until ctx is canceled or the node halts.
//
// It returns nil when ctx is canceled and an error wrapping ErrHalted on a
// fatal failure. Nothing is sampled or written if ctx is already done.
func (n *Node) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	n.transmit("debug", n.debug, []byte(Banner))
	n.log.Info("node started", "period", n.opts.Period, "light", n.opts.Light, "soil", n.opts.Soil)
	for {
		start := time.Now()
		if _, err := n.Cycle(); err != nil {
			return err
		}
		n.heartbeat()
		t := time.NewTimer(n.opts.Period - time.Since(start))
		select {
		case <-ctx.Done():
			t.Stop()
			n.log.Info("node stopped")
			return nil
		case <-t.C:
		}
	}
}

func (n *Node) heartbeat() {
	if n.opts.Heartbeat == nil {
		return
	}
	n.mu.Lock()
	n.led = !n.led
	l := n.led
	n.mu.Unlock()
	if err := n.opts.Heartbeat.Out(l); err != nil {
		n.log.Warn("heartbeat failed", "error", err)
	}
}

// Last returns the last transmitted frame.
func (n *Node) Last() telemetry.Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

func (n *Node) String() string {
	return fmt.Sprintf("node{%v, %v}", n.sensor, n.sampler)
}
