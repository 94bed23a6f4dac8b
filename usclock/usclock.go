// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package usclock provides the microsecond time source used by bit-banged
// protocols.
//
// A TimeSource is a free running counter that can be zeroed. Waits are busy
// loops; nothing in this package yields to the scheduler, which is what gives
// the protocol drivers their microsecond fidelity.
package usclock

import (
	"sync"
	"time"
)

// TimeSource is a monotonic microsecond counter.
type TimeSource interface {
	// Reset zeroes the counter.
	Reset()
	// ElapsedUS returns the microseconds since the last Reset. It wraps at
	// the counter range.
	ElapsedUS() uint32
	// WaitUS blocks, without suspending, until ElapsedUS() >= us.
	WaitUS(us uint32)
}

// Delay resets ts and busy-waits for us microseconds.
func Delay(ts TimeSource, us uint32) {
	ts.Reset()
	ts.WaitUS(us)
}

// Clock is a TimeSource backed by the monotonic reading of time.Now.
//
// The zero value is ready to use and starts counting at its first use.
type Clock struct {
	mu    sync.Mutex
	start time.Time
}

// New returns a Clock that has just been reset.
func New() *Clock {
	return &Clock{start: time.Now()}
}

// Reset implements TimeSource.
func (c *Clock) Reset() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// ElapsedUS implements TimeSource.
func (c *Clock) ElapsedUS() uint32 {
	c.mu.Lock()
	if c.start.IsZero() {
		c.start = time.Now()
	}
	start := c.start
	c.mu.Unlock()
	return uint32(time.Since(start) / time.Microsecond)
}

// WaitUS implements TimeSource.
func (c *Clock) WaitUS(us uint32) {
	for c.ElapsedUS() < us {
	}
}

func (c *Clock) String() string {
	return "usclock"
}

var _ TimeSource = &Clock{}
