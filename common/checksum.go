// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the additive checksum carried by single-wire humidity sensors.
package common

// Sum8 returns the 8-bit sum of the byte slice parameter, modulo 256. This is
// the integrity byte sent by the DHT family of sensors after their payload.
func Sum8(bytes ...byte) byte {
	var sum byte
	for _, val := range bytes {
		sum += val
	}
	return sum
}
