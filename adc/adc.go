// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package adc samples several channels of a single shared 12-bit
// analog-to-digital converter.
//
// The converter input stage keeps charge from the previously selected
// channel. Sampler therefore inserts a settling delay between two channels of
// a sequence and always walks the channels in the order it was given.
package adc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

const (
	// Bits is the converter resolution.
	Bits = 12
	// MaxRaw is the full scale reading.
	MaxRaw = 1<<Bits - 1
)

// Channel identifies a converter input.
type Channel uint8

// SampleTime is the sampling window of a conversion, in converter clock
// cycles. Longer windows are more stable on high impedance sources.
type SampleTime uint16

const (
	SampleTime3   SampleTime = 3
	SampleTime15  SampleTime = 15
	SampleTime28  SampleTime = 28
	SampleTime56  SampleTime = 56
	SampleTime84  SampleTime = 84
	SampleTime112 SampleTime = 112
	SampleTime144 SampleTime = 144
	SampleTime480 SampleTime = 480
)

// Valid reports whether st is one of the supported sampling windows.
func (st SampleTime) Valid() bool {
	switch st {
	case SampleTime3, SampleTime15, SampleTime28, SampleTime56, SampleTime84, SampleTime112, SampleTime144, SampleTime480:
		return true
	}
	return false
}

// ErrConversionTimeout is returned by Converter.Convert when the result was
// not ready in time. The caller may retry on the next cycle.
var ErrConversionTimeout = errors.New("adc: conversion timeout")

// ConfigError is returned when the converter could not be set up for a
// channel. It is not recoverable: the same configuration will fail again.
type ConfigError struct {
	Channel Channel
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("adc: configure channel %d: %v", e.Channel, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Sample is one raw conversion result, 0 to MaxRaw.
type Sample struct {
	Channel Channel
	Raw     uint16
}

// Potential converts the raw value to a voltage for the given reference.
func (s Sample) Potential(vRef physic.ElectricPotential) physic.ElectricPotential {
	return vRef * physic.ElectricPotential(s.Raw) / MaxRaw
}

// Converter is the conversion primitive of the hardware.
type Converter interface {
	// Configure selects ch as the input of the next conversion.
	Configure(ch Channel, st SampleTime) error
	// Convert runs a single conversion on the selected channel. It returns
	// ErrConversionTimeout if the result is not ready after timeout.
	Convert(timeout time.Duration) (uint16, error)
}

// Opts holds the configuration options for a Sampler.
type Opts struct {
	// SampleTime is used for every channel. Default is 480 cycles.
	SampleTime SampleTime
	// ConversionTimeout bounds a single conversion. Default is 100ms.
	ConversionTimeout time.Duration
	// Settle is the pause between two channels of a sequence. Default is
	// 20ms.
	Settle time.Duration
}

// DefaultOpts holds the default configuration options for a Sampler.
var DefaultOpts = Opts{
	SampleTime:        SampleTime480,
	ConversionTimeout: 100 * time.Millisecond,
	Settle:            20 * time.Millisecond,
}

// Result is the outcome for one channel of a sequence. Err is nil or wraps
// a conversion failure such as ErrConversionTimeout.
type Result struct {
	Sample Sample
	Err    error
}

// Sampler owns a Converter and sequences conversions on it.
type Sampler struct {
	mu   sync.Mutex
	c    Converter
	opts Opts
}

// New returns a Sampler over c. The Opts can be nil; zero fields take the
// default.
func New(c Converter, opts *Opts) *Sampler {
	o := DefaultOpts
	if opts != nil {
		if opts.SampleTime != 0 {
			o.SampleTime = opts.SampleTime
		}
		if opts.ConversionTimeout > 0 {
			o.ConversionTimeout = opts.ConversionTimeout
		}
		if opts.Settle > 0 {
			o.Settle = opts.Settle
		}
	}
	return &Sampler{c: c, opts: o}
}

// Sample configures ch and converts it once.
//
// A configuration failure is returned as a *ConfigError.
func (s *Sampler) Sample(ch Channel) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample(ch)
}

// Sequence samples chs in order, pausing Opts.Settle between two channels.
//
// A conversion failure on one channel is reported in its Result and the
// sequence goes on. A *ConfigError stops the sequence and is returned along
// with the results gathered so far.
func (s *Sampler) Sequence(chs ...Channel) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, 0, len(chs))
	for i, ch := range chs {
		if i > 0 {
			sleep(s.opts.Settle)
		}
		smp, err := s.sample(ch)
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return out, err
		}
		out = append(out, Result{Sample: smp, Err: err})
	}
	return out, nil
}

func (s *Sampler) sample(ch Channel) (Sample, error) {
	if err := s.c.Configure(ch, s.opts.SampleTime); err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return Sample{Channel: ch}, err
		}
		return Sample{Channel: ch}, &ConfigError{Channel: ch, Err: err}
	}
	raw, err := s.c.Convert(s.opts.ConversionTimeout)
	if err != nil {
		return Sample{Channel: ch}, fmt.Errorf("%w on channel %d", err, ch)
	}
	if raw > MaxRaw {
		raw = MaxRaw
	}
	return Sample{Channel: ch, Raw: raw}, nil
}

func (s *Sampler) String() string {
	return fmt.Sprintf("adc.Sampler{%v}", s.c)
}

var sleep = time.Sleep
