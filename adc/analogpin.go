// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package adc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/analog"
)

var (
	errUnknownChannel = errors.New("no pin mapped to channel")
	errSampleTime     = errors.New("unsupported sample time")
)

// PinConverter is a Converter over periph analog.PinADC pins, one per
// channel.
//
// periph reads are synchronous; the timeout is enforced by abandoning a read
// that takes too long. The abandoned read still completes in the background
// and holds the converter until then: no other read starts while it runs,
// whatever the channel.
type PinConverter struct {
	mu   sync.Mutex
	pins map[Channel]analog.PinADC
	sel  analog.PinADC
	busy chan struct{} // holds a token while a read is in flight
}

// NewPinConverter returns a Converter reading pins[ch] for channel ch.
func NewPinConverter(pins map[Channel]analog.PinADC) *PinConverter {
	m := make(map[Channel]analog.PinADC, len(pins))
	for ch, p := range pins {
		m[ch] = p
	}
	return &PinConverter{pins: m, busy: make(chan struct{}, 1)}
}

// Configure implements Converter.
func (p *PinConverter) Configure(ch Channel, st SampleTime) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !st.Valid() {
		return &ConfigError{Channel: ch, Err: fmt.Errorf("%w: %d cycles", errSampleTime, st)}
	}
	pin, ok := p.pins[ch]
	if !ok {
		return &ConfigError{Channel: ch, Err: errUnknownChannel}
	}
	p.sel = pin
	return nil
}

// Convert implements Converter. Readings are scaled to 12 bits using the
// range reported by the pin.
//
// The timeout covers both the wait for a previous, abandoned read to finish
// and the read itself.
func (p *PinConverter) Convert(timeout time.Duration) (uint16, error) {
	p.mu.Lock()
	pin := p.sel
	if p.busy == nil {
		p.busy = make(chan struct{}, 1)
	}
	busy := p.busy
	p.mu.Unlock()
	if pin == nil {
		return 0, errors.New("adc: no channel selected")
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case busy <- struct{}{}:
	case <-deadline.C:
		return 0, ErrConversionTimeout
	}
	type result struct {
		raw int32
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := pin.Read()
		<-busy
		done <- result{raw: s.Raw, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return 0, fmt.Errorf("adc: %s: %w", pin, r.err)
		}
		return scale(r.raw, pin), nil
	case <-deadline.C:
		return 0, ErrConversionTimeout
	}
}

// scale maps raw from the pin range to 0..MaxRaw.
func scale(raw int32, pin analog.PinADC) uint16 {
	lo, hi := pin.Range()
	span := int64(hi.Raw) - int64(lo.Raw)
	v := int64(raw) - int64(lo.Raw)
	if span > 0 && span != MaxRaw {
		v = v * MaxRaw / span
	}
	switch {
	case v < 0:
		return 0
	case v > MaxRaw:
		return MaxRaw
	}
	return uint16(v)
}

// Halt implements conn.Resource and halts every mapped pin.
func (p *PinConverter) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, pin := range p.pins {
		errs = append(errs, pin.Halt())
	}
	return errors.Join(errs...)
}

func (p *PinConverter) String() string {
	return fmt.Sprintf("adc.PinConverter{%d pins}", len(p.pins))
}

var _ Converter = &PinConverter{}
