// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/agrinode/common"
	"github.com/GermanBionicSystems/agrinode/gpioline"
	"github.com/GermanBionicSystems/agrinode/usclock"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Protocol timings in microseconds, datasheet p.5-6.
const (
	startLowUS  = 18000
	startHighUS = 20
	ackWaitUS   = 40
	ackSampleUS = 80
	bitSampleUS = 40

	frameBytes = 5
	frameBits  = frameBytes * 8
)

// MinInterval is the minimum time between two reads. The sensor returns the
// previous conversion, or nothing at all, when polled faster.
const MinInterval = 2 * time.Second

var (
	// ErrNoResponse is returned when the line is still high 40µs after the
	// start signal was released, meaning no sensor answered.
	ErrNoResponse = errors.New("dht11: no response")
	// ErrTimeout is returned when an expected edge did not arrive before
	// Opts.EdgeTimeout.
	ErrTimeout = errors.New("dht11: timeout")
)

// Status is the outcome of a read.
type Status int

const (
	StatusOK Status = iota
	StatusNoResponse
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "Ok"
	case StatusNoResponse:
		return "NoResponse"
	case StatusTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reading is a decoded sensor frame.
//
// The data fields are only meaningful when Status is StatusOK. The checksum
// is not enforced; use ChecksumValid to decide what to do on a mismatch.
type Reading struct {
	HumidityInt  uint8
	HumidityFrac uint8
	TempInt      uint8
	TempFrac     uint8
	Checksum     uint8
	Status       Status
	// Ack is set when the line was high 80µs into the handshake, as the
	// sensor acknowledgement pulse requires. It is informational; an absent
	// sensor is reported through StatusNoResponse.
	Ack bool
}

// ChecksumValid reports whether Checksum matches the 8-bit sum of the four
// payload bytes.
func (r *Reading) ChecksumValid() bool {
	return r.Checksum == common.Sum8(r.HumidityInt, r.HumidityFrac, r.TempInt, r.TempFrac)
}

// Humidity returns the relative humidity. The fractional byte is in tenths.
func (r *Reading) Humidity() physic.RelativeHumidity {
	return physic.RelativeHumidity(r.HumidityInt)*physic.PercentRH +
		physic.RelativeHumidity(r.HumidityFrac)*physic.PercentRH/10
}

// Temperature returns the temperature. The fractional byte is in tenths.
func (r *Reading) Temperature() physic.Temperature {
	return physic.ZeroCelsius +
		physic.Temperature(r.TempInt)*physic.Celsius +
		physic.Temperature(r.TempFrac)*physic.Celsius/10
}

func (r *Reading) String() string {
	if r.Status != StatusOK {
		return "dht11.Reading{" + r.Status.String() + "}"
	}
	return fmt.Sprintf("dht11.Reading{%d.%d%%rH %d.%d°C sum=%d valid=%t}",
		r.HumidityInt, r.HumidityFrac, r.TempInt, r.TempFrac, r.Checksum, r.ChecksumValid())
}

// Opts holds the configuration options for the device.
type Opts struct {
	// PollInterval is the step between two line samples while waiting for an
	// edge. Default is 1µs.
	PollInterval time.Duration
	// EdgeTimeout bounds every edge wait. The number of samples taken is
	// EdgeTimeout/PollInterval. Default is 500µs.
	EdgeTimeout time.Duration
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	PollInterval: time.Microsecond,
	EdgeTimeout:  500 * time.Microsecond,
}

// Dev is a handle to a DHT11 on a single GPIO line.
type Dev struct {
	line     gpioline.Line
	ts       usclock.TimeSource
	pollUS   uint32
	maxPolls int

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a Dev that talks over line, timed by ts. The caller must not
// use line for anything else while the Dev is in use. The Opts can be nil.
func New(line gpioline.Line, ts usclock.TimeSource, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.PollInterval < time.Microsecond {
		return nil, errors.New("dht11: PollInterval must be at least 1µs")
	}
	if opts.EdgeTimeout < opts.PollInterval {
		return nil, errors.New("dht11: EdgeTimeout must be at least PollInterval")
	}
	return &Dev{
		line:     line,
		ts:       ts,
		pollUS:   uint32(opts.PollInterval / time.Microsecond),
		maxPolls: int(opts.EdgeTimeout / opts.PollInterval),
	}, nil
}

// Read runs one complete start, handshake and 40-bit transfer.
//
// On failure the returned Reading only carries the Status; partially decoded
// bytes are dropped. The error wraps ErrNoResponse or ErrTimeout.
func (d *Dev) Read() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read()
}

func (d *Dev) read() (Reading, error) {
	if err := d.start(); err != nil {
		return Reading{Status: StatusTimeout}, err
	}
	ack, err := d.handshake()
	if err != nil {
		return failed(err), err
	}
	var data [frameBytes]byte
	if err := d.readBits(data[:]); err != nil {
		return failed(err), err
	}
	return Reading{
		HumidityInt:  data[0],
		HumidityFrac: data[1],
		TempInt:      data[2],
		TempFrac:     data[3],
		Checksum:     data[4],
		Status:       StatusOK,
		Ack:          ack,
	}, nil
}

func failed(err error) Reading {
	if errors.Is(err, ErrNoResponse) {
		return Reading{Status: StatusNoResponse}
	}
	return Reading{Status: StatusTimeout}
}

// start drives the wake-up pulse and releases the bus.
func (d *Dev) start() error {
	if err := d.line.SetMode(gpioline.Output); err != nil {
		return fmt.Errorf("dht11: start: %w", err)
	}
	if err := d.line.Write(gpio.Low); err != nil {
		return fmt.Errorf("dht11: start: %w", err)
	}
	usclock.Delay(d.ts, startLowUS)
	if err := d.line.Write(gpio.High); err != nil {
		return fmt.Errorf("dht11: start: %w", err)
	}
	usclock.Delay(d.ts, startHighUS)
	if err := d.line.SetMode(gpioline.InputPullUp); err != nil {
		return fmt.Errorf("dht11: release: %w", err)
	}
	return nil
}

// handshake checks the 80µs low / 80µs high response and waits for the
// first bit cell.
func (d *Dev) handshake() (bool, error) {
	usclock.Delay(d.ts, ackWaitUS)
	if d.line.Read() == gpio.High {
		return false, ErrNoResponse
	}
	usclock.Delay(d.ts, ackSampleUS)
	ack := d.line.Read() == gpio.High
	if err := d.waitFor(gpio.Low); err != nil {
		return ack, fmt.Errorf("%w waiting for data start", err)
	}
	return ack, nil
}

// readBits decodes len(data)*8 bits, MSB first.
func (d *Dev) readBits(data []byte) error {
	for i := range len(data) * 8 {
		if err := d.waitFor(gpio.High); err != nil {
			return fmt.Errorf("%w waiting for rising edge of bit %d", err, i)
		}
		usclock.Delay(d.ts, bitSampleUS)
		if d.line.Read() == gpio.High {
			data[i/8] |= 1 << (7 - i%8)
		}
		if err := d.waitFor(gpio.Low); err != nil {
			return fmt.Errorf("%w waiting for falling edge of bit %d", err, i)
		}
	}
	return nil
}

// waitFor polls the line until it reads l, giving up after maxPolls steps.
func (d *Dev) waitFor(l gpio.Level) error {
	for n := 0; d.line.Read() != l; {
		n++
		usclock.Delay(d.ts, d.pollUS)
		if n > d.maxPolls {
			return ErrTimeout
		}
	}
	return nil
}

// Sense implements physic.SenseEnv. Pressure is always 0.
//
// A checksum mismatch is not an error; call Read to inspect it.
func (d *Dev) Sense(e *physic.Env) error {
	e.Temperature = 0
	e.Pressure = 0
	e.Humidity = 0
	r, err := d.Read()
	if err != nil {
		return err
	}
	e.Temperature = r.Temperature()
	e.Humidity = r.Humidity()
	return nil
}

// SenseContinuous implements physic.SenseEnv. The minimum interval is
// MinInterval. Failed reads are skipped. Call Halt to stop.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("dht11: invalid interval %s, minimum %s", interval, MinInterval)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("dht11: sense continuous already running")
	}
	d.stop = make(chan struct{})
	stop := d.stop
	ch := make(chan physic.Env, 16)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e := physic.Env{}
				if err := d.Sense(&e); err == nil {
					select {
					case ch <- e:
					case <-stop:
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Celsius / 10
	e.Pressure = 0
	e.Humidity = physic.PercentRH / 10
}

// Halt stops a running SenseContinuous and releases the line.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line.SetMode(gpioline.InputPullUp)
}

func (d *Dev) String() string {
	return fmt.Sprintf("dht11{%v}", d.line)
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
