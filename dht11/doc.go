// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dht11 controls an Aosong DHT11 humidity and temperature sensor
// over its single-wire timing protocol.
//
// The bus is bit-banged: the host drives an 18ms start pulse, releases the
// line, checks the sensor handshake and then decodes 40 bits by sampling the
// line 40µs after every rising edge. A short high pulse (26-28µs) is a 0, a
// long one (70µs) is a 1. Every edge wait is bounded so a missing or stuck
// sensor can never hang the caller.
//
// The dht11.Dev type implements the physic.SenseEnv interface. The pressure
// field is never set.
//
// # Datasheet
//
// https://www.mouser.com/datasheet/2/758/DHT11-Technical-Data-Sheet-Translated-Version-1143054.pdf
package dht11
