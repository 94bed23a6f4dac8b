// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package usclock

import (
	"testing"
	"time"
)

func TestClockWait(t *testing.T) {
	c := New()
	start := time.Now()
	Delay(c, 2000)
	if d := time.Since(start); d < 2*time.Millisecond {
		t.Fatalf("Delay(2000) returned after %s", d)
	}
	if e := c.ElapsedUS(); e < 2000 {
		t.Fatalf("ElapsedUS()=%d after waiting 2000", e)
	}
}

func TestClockReset(t *testing.T) {
	c := New()
	c.WaitUS(500)
	c.Reset()
	if e := c.ElapsedUS(); e >= 500 {
		t.Fatalf("ElapsedUS()=%d right after Reset", e)
	}
}

func TestClockZeroValue(t *testing.T) {
	var c Clock
	if e := c.ElapsedUS(); e > 1000 {
		t.Fatalf("zero Clock ElapsedUS()=%d", e)
	}
	c.Reset()
	c.WaitUS(10)
	if e := c.ElapsedUS(); e < 10 {
		t.Fatalf("ElapsedUS()=%d", e)
	}
}

func TestClockZeroValueWait(t *testing.T) {
	var c Clock
	done := make(chan struct{})
	go func() {
		c.WaitUS(100)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitUS on a zero Clock never returned")
	}
	if e := c.ElapsedUS(); e < 100 {
		t.Fatalf("ElapsedUS()=%d", e)
	}
}

func TestClockMonotonic(t *testing.T) {
	c := New()
	prev := c.ElapsedUS()
	for range 1000 {
		e := c.ElapsedUS()
		if e < prev {
			t.Fatalf("ElapsedUS went backwards: %d < %d", e, prev)
		}
		prev = e
	}
}
