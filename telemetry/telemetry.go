// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetry encodes the readings of one acquisition cycle into the
// two serial text frames of the node.
//
// The uplink frame feeds the radio gateway:
//
//	26,60,2048,45\n
//
// The debug frame is for humans on a terminal:
//
//	DHT: 26C 60% | Light(Raw): 2048 | Soil: 45%\r\n
//
// Encoding is pure and allocates only the returned slice.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/agrinode/adc"
)

// Frame is the content of one cycle's telemetry.
//
// The flags are not part of the text frames. They let the caller know that a
// value was carried over from a previous cycle or failed its checksum.
type Frame struct {
	TempInt     uint8
	HumidityInt uint8
	LightRaw    uint16
	SoilPercent uint8

	// SensorStale is set when the humidity sensor read failed and TempInt and
	// HumidityInt come from an earlier cycle.
	SensorStale bool
	// LightStale and SoilStale are set when the conversion timed out and the
	// previous raw value was kept.
	LightStale bool
	SoilStale  bool
	// ChecksumOK reports the sensor checksum of the reading in use.
	ChecksumOK bool
}

// Stale reports whether any value of f was carried over.
func (f *Frame) Stale() bool {
	return f.SensorStale || f.LightStale || f.SoilStale
}

// AppendUplink appends the uplink frame to dst and returns the extended
// buffer.
func (f *Frame) AppendUplink(dst []byte) []byte {
	dst = strconv.AppendUint(dst, uint64(f.TempInt), 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, uint64(f.HumidityInt), 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, uint64(f.LightRaw), 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, uint64(f.SoilPercent), 10)
	return append(dst, '\n')
}

// AppendDebug appends the debug frame to dst and returns the extended
// buffer.
func (f *Frame) AppendDebug(dst []byte) []byte {
	dst = append(dst, "DHT: "...)
	dst = strconv.AppendUint(dst, uint64(f.TempInt), 10)
	dst = append(dst, "C "...)
	dst = strconv.AppendUint(dst, uint64(f.HumidityInt), 10)
	dst = append(dst, "% | Light(Raw): "...)
	dst = strconv.AppendUint(dst, uint64(f.LightRaw), 10)
	dst = append(dst, " | Soil: "...)
	dst = strconv.AppendUint(dst, uint64(f.SoilPercent), 10)
	return append(dst, "%\r\n"...)
}

// Uplink returns the uplink frame.
func (f *Frame) Uplink() []byte {
	var buf [32]byte
	return f.AppendUplink(buf[:0])
}

// Debug returns the debug frame.
func (f *Frame) Debug() []byte {
	var buf [80]byte
	return f.AppendDebug(buf[:0])
}

func (f *Frame) String() string {
	return strings.TrimSuffix(string(f.Uplink()), "\n")
}

// soilFullScale is the raw value of a completely dry probe.
const soilFullScale = 4095

// SoilPercent converts a raw soil probe reading to a moisture percentage.
//
// The probe is inverted: full scale is dry (0%) and 0 is wet (100%). Values
// above full scale are clamped.
func SoilPercent(raw uint16) uint8 {
	r := int(raw)
	if r > soilFullScale {
		r = soilFullScale
	}
	p := 100 - r*100/soilFullScale
	switch {
	case p < 0:
		p = 0
	case p > 100:
		p = 100
	}
	return uint8(p)
}

// Light sensor divider, as wired on the node: LDR to VIN, 10kΩ to ground.
const (
	lightVIN    = 3.3
	lightRFixed = 10000.0
	lightR10    = 15000.0 // LDR resistance at 10 lux
	lightGamma  = 0.7
	// MaxLux is reported for a saturated light reading.
	MaxLux = 50000
)

// Lux estimates the illuminance from a raw light reading. It is a rough
// photoresistor model, good for dashboards and not much else.
func Lux(raw uint16) float64 {
	if raw < 5 {
		return 0
	}
	if raw > 4079 {
		return MaxLux
	}
	vOut := float64(raw) / adc.MaxRaw * lightVIN
	if vOut >= lightVIN {
		return MaxLux
	}
	rLDR := lightVIN*lightRFixed/vOut - lightRFixed
	return math.Round(10 * math.Pow(lightR10/rLDR, 1/lightGamma))
}

// ErrMalformed is wrapped by ParseUplink errors.
var ErrMalformed = errors.New("telemetry: malformed uplink frame")

// ParseUplink decodes an uplink frame. The trailing line ending is optional.
// The returned Frame has no flags set; they do not travel on the wire.
func ParseUplink(line string) (Frame, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) != 4 {
		return Frame{}, fmt.Errorf("%w: %d fields in %q", ErrMalformed, len(fields), line)
	}
	var v [4]uint64
	limits := [4]uint64{math.MaxUint8, math.MaxUint8, adc.MaxRaw, 100}
	names := [4]string{"temperature", "humidity", "light", "soil"}
	for i, f := range fields {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %s: %v", ErrMalformed, names[i], err)
		}
		if n > limits[i] {
			return Frame{}, fmt.Errorf("%w: %s %d out of range", ErrMalformed, names[i], n)
		}
		v[i] = n
	}
	return Frame{
		TempInt:     uint8(v[0]),
		HumidityInt: uint8(v[1]),
		LightRaw:    uint16(v[2]),
		SoilPercent: uint8(v[3]),
	}, nil
}
