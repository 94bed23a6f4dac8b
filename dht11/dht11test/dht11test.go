// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dht11test simulates a DHT11 on its single-wire bus.
//
// Sim is at the same time the gpioline.Line the driver talks over and the
// usclock.TimeSource it times itself with. Time only moves when the driver
// waits, so a complete read is deterministic and runs in microseconds of
// wall time.
package dht11test

import (
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/agrinode/common"
	"github.com/GermanBionicSystems/agrinode/gpioline"
	"github.com/GermanBionicSystems/agrinode/usclock"
	"periph.io/x/conn/v3/gpio"
)

// Fault makes the simulated sensor misbehave.
type Fault int

const (
	// NoFault sends a complete frame.
	NoFault Fault = iota
	// Absent never pulls the line low: no sensor on the bus.
	Absent
	// StuckLow pulls the line low after the release and never lets go.
	StuckLow
	// StuckHigh stays high after the acknowledgement pulse.
	StuckHigh
)

// Default waveform timings in microseconds.
const (
	DefaultResponseDelay = 30
	DefaultBitLow        = 50
	DefaultZeroHigh      = 26
	DefaultOneHigh       = 70

	minStartLow = 18000
	ackLow      = 80
	ackHigh     = 80
)

// NewFrame returns the 5 bytes a sensor sends for the given payload, with a
// correct checksum.
func NewFrame(humInt, humFrac, tempInt, tempFrac byte) [5]byte {
	return [5]byte{humInt, humFrac, tempInt, tempFrac, common.Sum8(humInt, humFrac, tempInt, tempFrac)}
}

// Sim is a simulated DHT11 with its bus and clock.
//
// Zero values of the timing fields select the defaults above.
type Sim struct {
	sync.Mutex
	// Frame is sent MSB first, byte 0 first.
	Frame [5]byte
	Fault Fault
	// Bits is the number of bits actually sent. 0 means all 40.
	Bits int

	ResponseDelay uint32
	BitLow        uint32
	ZeroHigh      uint32
	OneHigh       uint32

	// Reads counts the line samples taken by the driver.
	Reads int

	now        uint64
	resetAt    uint64
	out        bool
	driven     gpio.Level
	lowAt      uint64
	lowFor     uint64
	releasedAt uint64
	responding bool
}

// Now returns the simulated time in microseconds since the Sim was created.
func (s *Sim) Now() uint64 {
	s.Lock()
	defer s.Unlock()
	return s.now
}

// Reset implements usclock.TimeSource.
func (s *Sim) Reset() {
	s.Lock()
	s.resetAt = s.now
	s.Unlock()
}

// ElapsedUS implements usclock.TimeSource.
func (s *Sim) ElapsedUS() uint32 {
	s.Lock()
	defer s.Unlock()
	return uint32(s.now - s.resetAt)
}

// WaitUS implements usclock.TimeSource. It jumps the clock forward.
func (s *Sim) WaitUS(us uint32) {
	s.Lock()
	defer s.Unlock()
	if end := s.resetAt + uint64(us); s.now < end {
		s.now = end
	}
}

// Advance moves the clock forward, as if the host was busy elsewhere.
func (s *Sim) Advance(us uint64) {
	s.Lock()
	s.now += us
	s.Unlock()
}

// SetMode implements gpioline.Line. Releasing the line after a start pulse
// of at least 18ms triggers a response.
func (s *Sim) SetMode(m gpioline.Mode) error {
	s.Lock()
	defer s.Unlock()
	switch m {
	case gpioline.Output:
		if !s.out {
			s.driven = gpio.High
		}
		s.out = true
	case gpioline.InputPullUp:
		if s.out {
			s.responding = s.Fault != Absent && s.lowFor >= minStartLow
			s.releasedAt = s.now
			s.lowFor = 0
		}
		s.out = false
	default:
		return gpioline.ErrInvalidMode
	}
	return nil
}

// Write implements gpioline.Line.
func (s *Sim) Write(l gpio.Level) error {
	s.Lock()
	defer s.Unlock()
	if !s.out {
		return gpioline.ErrNotOutput
	}
	if l == gpio.Low && s.driven == gpio.High {
		s.lowAt = s.now
	}
	if l == gpio.High && s.driven == gpio.Low {
		s.lowFor = s.now - s.lowAt
	}
	s.driven = l
	return nil
}

// Read implements gpioline.Line.
func (s *Sim) Read() gpio.Level {
	s.Lock()
	defer s.Unlock()
	s.Reads++
	if s.out {
		return s.driven
	}
	if !s.responding {
		return gpio.High
	}
	return s.waveform(s.now - s.releasedAt)
}

// waveform returns the level the sensor holds dt µs after the release.
func (s *Sim) waveform(dt uint64) gpio.Level {
	t := uint64(orDefault(s.ResponseDelay, DefaultResponseDelay))
	if dt < t {
		return gpio.High
	}
	if s.Fault == StuckLow {
		return gpio.Low
	}
	if t += ackLow; dt < t {
		return gpio.Low
	}
	if t += ackHigh; dt < t {
		return gpio.High
	}
	if s.Fault == StuckHigh {
		return gpio.High
	}
	bitLow := uint64(orDefault(s.BitLow, DefaultBitLow))
	bits := s.Bits
	if bits <= 0 || bits > 40 {
		bits = 40
	}
	for i := range bits {
		if t += bitLow; dt < t {
			return gpio.Low
		}
		w := orDefault(s.ZeroHigh, DefaultZeroHigh)
		if s.Frame[i/8]&(1<<(7-i%8)) != 0 {
			w = orDefault(s.OneHigh, DefaultOneHigh)
		}
		if t += uint64(w); dt < t {
			return gpio.High
		}
	}
	if t += bitLow; dt < t {
		return gpio.Low
	}
	return gpio.High
}

func orDefault(v, def uint32) uint32 {
	if v == 0 {
		return def
	}
	return v
}

func (s *Sim) String() string {
	return fmt.Sprintf("dht11test.Sim{%x}", s.Frame)
}

var _ gpioline.Line = &Sim{}
var _ usclock.TimeSource = &Sim{}
