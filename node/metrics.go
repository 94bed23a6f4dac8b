// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"github.com/GermanBionicSystems/agrinode/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agrinode"

// Metrics are the Prometheus collectors updated by a Node.
type Metrics struct {
	Cycles             prometheus.Counter
	SensorFailures     *prometheus.CounterVec
	ChecksumMismatches prometheus.Counter
	ConversionFailures *prometheus.CounterVec
	TransmitErrors     *prometheus.CounterVec
	Halted             prometheus.Gauge

	Temperature prometheus.Gauge
	Humidity    prometheus.Gauge
	LightRaw    prometheus.Gauge
	SoilPercent prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Acquisition cycles completed.",
		}),
		SensorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_failures_total",
			Help:      "Humidity sensor reads that failed, by status.",
		}, []string{"status"}),
		ChecksumMismatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_mismatches_total",
			Help:      "Humidity sensor frames with a bad checksum.",
		}),
		ConversionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_failures_total",
			Help:      "Analog conversions that failed, by channel.",
		}, []string{"channel"}),
		TransmitErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transmit_errors_total",
			Help:      "Frames that could not be written, by link.",
		}, []string{"link"}),
		Halted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "halted",
			Help:      "1 once the node stopped on a fatal error.",
		}),
		Temperature: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last transmitted temperature.",
		}),
		Humidity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last transmitted relative humidity.",
		}),
		LightRaw: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "light_raw",
			Help:      "Last transmitted raw light reading.",
		}),
		SoilPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "soil_moisture_percent",
			Help:      "Last transmitted soil moisture.",
		}),
	}
}

func (m *Metrics) observe(f *telemetry.Frame) {
	m.Temperature.Set(float64(f.TempInt))
	m.Humidity.Set(float64(f.HumidityInt))
	m.LightRaw.Set(float64(f.LightRaw))
	m.SoilPercent.Set(float64(f.SoilPercent))
}
