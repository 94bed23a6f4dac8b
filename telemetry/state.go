// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package telemetry

// State is a coarse, human oriented rating of one quantity.
type State string

// Temperature states.
const (
	TooCold State = "too_cold"
	Cool    State = "cool"
	Warm    State = "warm"
	TooHot  State = "too_hot"
)

// Humidity states.
const (
	TooDry   State = "too_dry"
	Moderate State = "moderate"
	TooHumid State = "too_humid"
)

// Soil moisture states.
const (
	BoneDry State = "bone_dry"
	Dry     State = "dry"
	Moist   State = "moist"
	Wet     State = "wet"
)

// Light states.
const (
	TooDark     State = "too_dark"
	LowLight    State = "low"
	MediumLight State = "medium"
	HighLight   State = "high"
)

// Perfect is the target band for temperature and humidity.
const Perfect State = "perfect"

// TemperatureState rates a temperature in °C: below 15 is too cold, below
// 20 cool, below 30 perfect, below 35 warm.
func TemperatureState(c float64) State {
	switch {
	case c < 15:
		return TooCold
	case c < 20:
		return Cool
	case c < 30:
		return Perfect
	case c < 35:
		return Warm
	default:
		return TooHot
	}
}

// HumidityState rates a relative humidity in %.
func HumidityState(pct float64) State {
	switch {
	case pct < 30:
		return TooDry
	case pct < 50:
		return Moderate
	case pct < 70:
		return Perfect
	default:
		return TooHumid
	}
}

// SoilState rates a soil moisture in %.
func SoilState(pct float64) State {
	switch {
	case pct < 20:
		return BoneDry
	case pct < 40:
		return Dry
	case pct < 70:
		return Moist
	default:
		return Wet
	}
}

// LightState rates an illuminance in lux.
func LightState(lux float64) State {
	switch {
	case lux < 200:
		return TooDark
	case lux < 800:
		return LowLight
	case lux < 1600:
		return MediumLight
	default:
		return HighLight
	}
}

// States holds the rating of each quantity of a Frame.
type States struct {
	Temperature State `json:"temperature"`
	Humidity    State `json:"humidity"`
	Soil        State `json:"soil"`
	Light       State `json:"light"`
}

// Classify rates every quantity of f. Light is rated on its Lux estimate.
func Classify(f *Frame) States {
	return States{
		Temperature: TemperatureState(float64(f.TempInt)),
		Humidity:    HumidityState(float64(f.HumidityInt)),
		Soil:        SoilState(float64(f.SoilPercent)),
		Light:       LightState(Lux(f.LightRaw)),
	}
}
