// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package adc

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
)

type fakePin struct {
	name   string
	max    int32
	raw    int32
	err    error
	block  chan struct{}
	halted bool
}

func (p *fakePin) String() string   { return p.name }
func (p *fakePin) Name() string     { return p.name }
func (p *fakePin) Number() int      { return 0 }
func (p *fakePin) Function() string { return "ADC" }
func (p *fakePin) Halt() error {
	p.halted = true
	return nil
}

func (p *fakePin) Range() (analog.Sample, analog.Sample) {
	return analog.Sample{}, analog.Sample{V: 3300 * physic.MilliVolt, Raw: p.max}
}

func (p *fakePin) Read() (analog.Sample, error) {
	if p.block != nil {
		<-p.block
	}
	return analog.Sample{Raw: p.raw}, p.err
}

func TestPinConverter(t *testing.T) {
	light := &fakePin{name: "A0", max: MaxRaw, raw: 2048}
	soil := &fakePin{name: "A1", max: 1023, raw: 1023}
	c := NewPinConverter(map[Channel]analog.PinADC{0: light, 1: soil})

	if err := c.Configure(0, SampleTime480); err != nil {
		t.Fatal(err)
	}
	if raw, err := c.Convert(time.Second); err != nil || raw != 2048 {
		t.Fatalf("Convert()=%d, %v", raw, err)
	}
	if err := c.Configure(1, SampleTime480); err != nil {
		t.Fatal(err)
	}
	// A 10-bit full scale maps to the 12-bit full scale.
	if raw, err := c.Convert(time.Second); err != nil || raw != MaxRaw {
		t.Fatalf("Convert()=%d, %v", raw, err)
	}
	if err := c.Halt(); err != nil {
		t.Fatal(err)
	}
	if !light.halted || !soil.halted {
		t.Fatal("pins not halted")
	}
}

func TestPinConverterConfigErrors(t *testing.T) {
	c := NewPinConverter(map[Channel]analog.PinADC{0: &fakePin{name: "A0", max: MaxRaw}})
	var cfgErr *ConfigError
	if err := c.Configure(5, SampleTime480); !errors.As(err, &cfgErr) || cfgErr.Channel != 5 {
		t.Fatalf("unknown channel: %v", err)
	}
	if err := c.Configure(0, SampleTime(7)); !errors.As(err, &cfgErr) {
		t.Fatalf("bad sample time: %v", err)
	}
	if _, err := NewPinConverter(nil).Convert(time.Second); err == nil {
		t.Fatal("Convert without Configure succeeded")
	}
}

func TestPinConverterTimeout(t *testing.T) {
	p := &fakePin{name: "A0", max: MaxRaw, block: make(chan struct{})}
	defer close(p.block)
	c := NewPinConverter(map[Channel]analog.PinADC{0: p})
	if err := c.Configure(0, SampleTime480); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Convert(5 * time.Millisecond); !errors.Is(err, ErrConversionTimeout) {
		t.Fatalf("Convert() error %v", err)
	}
}

// slowPin takes delay per read and records how many reads overlap across
// all the pins sharing the same counters.
type slowPin struct {
	fakePin
	delay       time.Duration
	inFlight    *atomic.Int32
	maxInFlight *atomic.Int32
}

func (p *slowPin) Read() (analog.Sample, error) {
	n := p.inFlight.Add(1)
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(p.delay)
	p.inFlight.Add(-1)
	return analog.Sample{Raw: p.raw}, nil
}

func TestPinConverterAbandonedReadHoldsConverter(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	light := &slowPin{fakePin: fakePin{name: "A0", max: MaxRaw, raw: 100}, delay: 50 * time.Millisecond, inFlight: &inFlight, maxInFlight: &maxInFlight}
	soil := &slowPin{fakePin: fakePin{name: "A1", max: MaxRaw, raw: 200}, delay: 20 * time.Millisecond, inFlight: &inFlight, maxInFlight: &maxInFlight}
	c := NewPinConverter(map[Channel]analog.PinADC{0: light, 1: soil})
	s := New(c, &Opts{ConversionTimeout: 10 * time.Millisecond, Settle: time.Millisecond})

	res, err := s.Sequence(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range res {
		if !errors.Is(r.Err, ErrConversionTimeout) {
			t.Errorf("channel %d: err %v", i, r.Err)
		}
	}
	if got := maxInFlight.Load(); got != 1 {
		t.Fatalf("%d reads overlapped", got)
	}

	// Once the abandoned read is done the converter is usable again.
	if err := c.Configure(1, SampleTime480); err != nil {
		t.Fatal(err)
	}
	if raw, err := c.Convert(time.Second); err != nil || raw != 200 {
		t.Fatalf("Convert()=%d, %v", raw, err)
	}
	if got := maxInFlight.Load(); got != 1 {
		t.Fatalf("%d reads overlapped", got)
	}
}

func TestPinConverterReadError(t *testing.T) {
	boom := errors.New("boom")
	c := NewPinConverter(map[Channel]analog.PinADC{0: &fakePin{name: "A0", max: MaxRaw, err: boom}})
	if err := c.Configure(0, SampleTime480); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Convert(time.Second); !errors.Is(err, boom) {
		t.Fatalf("Convert() error %v", err)
	}
}

func TestScaleClamps(t *testing.T) {
	p := &fakePin{max: MaxRaw}
	if v := scale(-5, p); v != 0 {
		t.Errorf("scale(-5)=%d", v)
	}
	if v := scale(5000, p); v != MaxRaw {
		t.Errorf("scale(5000)=%d", v)
	}
}
