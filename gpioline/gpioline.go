// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpioline exposes a single GPIO pin whose direction is switched at
// runtime, which is what half-duplex single-wire protocols need.
//
// A Line is either driven (Output) or released with a pull-up
// (InputPullUp). There is no buffering: every call reflects the physical
// state of the pin at the time of the call.
package gpioline

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Mode is the direction of a Line.
type Mode int

const (
	// Output drives the line.
	Output Mode = iota
	// InputPullUp releases the line and enables the internal pull-up.
	InputPullUp
)

func (m Mode) String() string {
	switch m {
	case Output:
		return "Output"
	case InputPullUp:
		return "InputPullUp"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var (
	// ErrNotOutput is returned by Write while the line is in input mode.
	ErrNotOutput = errors.New("gpioline: write on a line in input mode")
	// ErrInvalidMode is returned by SetMode for an unknown Mode.
	ErrInvalidMode = errors.New("gpioline: invalid mode")
)

// Line is a GPIO pin with a runtime switchable direction.
type Line interface {
	// SetMode reconfigures the line. It takes effect before the next Read or
	// Write.
	SetMode(m Mode) error
	// Write drives the line. Only valid in Output mode.
	Write(l gpio.Level) error
	// Read samples the line. Only meaningful in InputPullUp mode.
	Read() gpio.Level
}

// Pin adapts a periph gpio.PinIO to a Line.
type Pin struct {
	mu   sync.Mutex
	p    gpio.PinIO
	mode Mode
	last gpio.Level
}

// New returns a Line backed by p. The pin is left untouched until the first
// SetMode call; it is assumed to be released.
func New(p gpio.PinIO) *Pin {
	return &Pin{p: p, mode: InputPullUp, last: gpio.High}
}

// ByName looks up a pin in the gpioreg registry and wraps it. host.Init()
// must have been called.
func ByName(name string) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpioline: no pin named %q", name)
	}
	return New(p), nil
}

// SetMode implements Line.
//
// Switching to Output drives the last written level, High for a fresh pin,
// which matches the idle state of a pulled-up bus.
func (l *Pin) SetMode(m Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	switch m {
	case Output:
		err = l.p.Out(l.last)
	case InputPullUp:
		err = l.p.In(gpio.PullUp, gpio.NoEdge)
	default:
		return ErrInvalidMode
	}
	if err != nil {
		return fmt.Errorf("gpioline: %s to %s: %w", l.p, m, err)
	}
	l.mode = m
	return nil
}

// Write implements Line.
func (l *Pin) Write(level gpio.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mode != Output {
		return ErrNotOutput
	}
	if err := l.p.Out(level); err != nil {
		return fmt.Errorf("gpioline: %s: %w", l.p, err)
	}
	l.last = level
	return nil
}

// Read implements Line.
func (l *Pin) Read() gpio.Level {
	return l.p.Read()
}

// Mode returns the current direction of the line.
func (l *Pin) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// Halt releases the line and implements conn.Resource.
func (l *Pin) Halt() error {
	if err := l.SetMode(InputPullUp); err != nil {
		return err
	}
	return l.p.Halt()
}

func (l *Pin) String() string {
	return "gpioline{" + l.p.String() + "}"
}

var _ Line = &Pin{}
