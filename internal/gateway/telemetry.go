// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gateway

import (
	"time"

	"github.com/GermanBionicSystems/agrinode/telemetry"
)

// Telemetry is the JSON document published for each uplink frame.
type Telemetry struct {
	NodeID      string    `json:"node_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature_c"`
	Humidity    float64   `json:"humidity_pct"`
	LightRaw    uint16    `json:"light_raw"`
	LightLux    float64   `json:"light_lux"`
	SoilPercent uint8     `json:"soil_pct"`

	// States rates each quantity for dashboards.
	States telemetry.States `json:"states"`
}

// NewTelemetry converts a decoded uplink frame received at ts.
func NewTelemetry(nodeID string, f telemetry.Frame, ts time.Time) Telemetry {
	return Telemetry{
		NodeID:      nodeID,
		Timestamp:   ts.UTC(),
		Temperature: float64(f.TempInt),
		Humidity:    float64(f.HumidityInt),
		LightRaw:    f.LightRaw,
		LightLux:    telemetry.Lux(f.LightRaw),
		SoilPercent: f.SoilPercent,
		States:      telemetry.Classify(&f),
	}
}

// Topic returns the MQTT topic of a node.
func Topic(nodeID string) string {
	return "nodes/" + nodeID + "/telemetry"
}
