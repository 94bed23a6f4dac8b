// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package adc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
)

// iioRoot is where the kernel exposes Industrial I/O devices.
var iioRoot = "/sys/bus/iio/devices"

// IIOPin is an analog.PinADC reading a Linux Industrial I/O voltage channel,
// e.g. the on-chip ADC of a single board computer or an SPI ADC with a
// kernel driver.
type IIOPin struct {
	device  string
	channel int
	bits    int
	raw     string
	scale   float64 // mV per LSB, 0 if unknown
}

// OpenIIO opens channel of an IIO device such as "iio:device0". bits is the
// converter resolution.
func OpenIIO(device string, channel, bits int) (*IIOPin, error) {
	if bits < 1 || bits > 24 {
		return nil, fmt.Errorf("adc: invalid resolution %d bits", bits)
	}
	if channel < 0 {
		return nil, fmt.Errorf("adc: invalid channel %d", channel)
	}
	dir := filepath.Join(iioRoot, device)
	p := &IIOPin{
		device:  device,
		channel: channel,
		bits:    bits,
		raw:     filepath.Join(dir, fmt.Sprintf("in_voltage%d_raw", channel)),
	}
	if _, err := os.Stat(p.raw); err != nil {
		return nil, fmt.Errorf("adc: %s: %w", p, err)
	}
	for _, name := range []string{fmt.Sprintf("in_voltage%d_scale", channel), "in_voltage_scale"} {
		if v, err := readFloat(filepath.Join(dir, name)); err == nil {
			p.scale = v
			break
		}
	}
	return p, nil
}

// Range implements analog.PinADC.
func (p *IIOPin) Range() (analog.Sample, analog.Sample) {
	full := int32(1)<<p.bits - 1
	return analog.Sample{}, analog.Sample{V: p.potential(full), Raw: full}
}

// Read implements analog.PinADC.
func (p *IIOPin) Read() (analog.Sample, error) {
	b, err := os.ReadFile(p.raw)
	if err != nil {
		return analog.Sample{}, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return analog.Sample{}, fmt.Errorf("adc: %s: %w", p, err)
	}
	return analog.Sample{V: p.potential(int32(v)), Raw: int32(v)}, nil
}

func (p *IIOPin) potential(raw int32) physic.ElectricPotential {
	return physic.ElectricPotential(float64(raw) * p.scale * float64(physic.MilliVolt))
}

// Name implements pin.Pin.
func (p *IIOPin) Name() string {
	return p.String()
}

// Number implements pin.Pin.
func (p *IIOPin) Number() int {
	return p.channel
}

// Function implements pin.Pin.
func (p *IIOPin) Function() string {
	return "ADC"
}

// Halt implements conn.Resource.
func (p *IIOPin) Halt() error {
	return nil
}

func (p *IIOPin) String() string {
	return p.device + "/in_voltage" + strconv.Itoa(p.channel)
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, errors.New("adc: malformed " + filepath.Base(path))
	}
	return v, nil
}

var _ analog.PinADC = &IIOPin{}
