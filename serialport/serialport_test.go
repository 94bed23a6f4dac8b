// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serialport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// chunky accepts at most max bytes per Write.
type chunky struct {
	bytes.Buffer
	max     int
	calls   int
	drained int
	err     error
	closed  bool
}

func (c *chunky) Write(b []byte) (int, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	if len(b) > c.max {
		b = b[:c.max]
	}
	return c.Buffer.Write(b)
}

func (c *chunky) Drain() error {
	c.drained++
	return nil
}

func (c *chunky) Close() error {
	c.closed = true
	return nil
}

func TestTransmitShortWrites(t *testing.T) {
	c := &chunky{max: 3}
	p := New("fake", UplinkBaud, c)
	if err := p.Transmit([]byte("26,60,2048,45\n")); err != nil {
		t.Fatal(err)
	}
	if got := c.String(); got != "26,60,2048,45\n" {
		t.Fatalf("got %q", got)
	}
	if c.calls != 5 {
		t.Fatalf("%d writes", c.calls)
	}
	if c.drained != 1 {
		t.Fatalf("drained %d times", c.drained)
	}
}

func TestTransmitNoProgress(t *testing.T) {
	c := &chunky{max: 0}
	p := New("fake", UplinkBaud, c)
	if err := p.Transmit([]byte("x")); !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("got %v", err)
	}
}

func TestTransmitError(t *testing.T) {
	boom := errors.New("boom")
	p := New("fake", DebugBaud, &chunky{max: 10, err: boom})
	if err := p.Transmit([]byte("x")); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if n, err := p.Write([]byte("x")); n != 0 || !errors.Is(err, boom) {
		t.Fatalf("Write()=%d, %v", n, err)
	}
}

func TestOrdering(t *testing.T) {
	c := &chunky{max: 64}
	p := New("fake", DebugBaud, c)
	frames := []string{"System Booting...\r\n", "1,2,3,4\n", "5,6,7,8\n"}
	for _, f := range frames {
		if n, err := p.Write([]byte(f)); err != nil || n != len(f) {
			t.Fatalf("Write()=%d, %v", n, err)
		}
	}
	if got := c.String(); got != strings.Join(frames, "") {
		t.Fatalf("got %q", got)
	}
}

func TestClose(t *testing.T) {
	c := &chunky{max: 1}
	p := New("fake", UplinkBaud, c)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !c.closed {
		t.Fatal("underlying stream not closed")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Transmit([]byte("x")); err != ErrClosed {
		t.Fatalf("got %v", err)
	}
	if err := p.ReadLines(context.Background(), func(string) {}); err != ErrClosed {
		t.Fatalf("got %v", err)
	}
}

type rwc struct {
	io.Reader
	io.Writer
	io.Closer
}

func TestReadLines(t *testing.T) {
	in := "26,60,2048,45\n\r\n  \n27,61,2000,44\r\npartial"
	p := New("fake", UplinkBaud, rwc{strings.NewReader(in), io.Discard, io.NopCloser(nil)})
	var got []string
	err := p.ReadLines(context.Background(), func(l string) { got = append(got, l) })
	if err != io.EOF {
		t.Fatalf("got %v", err)
	}
	want := []string{"26,60,2048,45", "27,61,2000,44", "partial"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
}

func TestReadLinesCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := New("fake", UplinkBaud, rwc{r, io.Discard, r})
	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- p.ReadLines(ctx, func(l string) { lines <- l }) }()
	if _, err := w.Write([]byte("1,2,3,4\n")); err != nil {
		t.Fatal(err)
	}
	if l := <-lines; l != "1,2,3,4" {
		t.Fatalf("got %q", l)
	}
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ReadLines did not return after cancel")
	}
}

func TestString(t *testing.T) {
	p := New("/dev/ttyUSB0", UplinkBaud, &chunky{})
	if s := p.String(); s != "serialport{/dev/ttyUSB0@9600}" {
		t.Fatal(s)
	}
}

func TestOpenInvalidBaud(t *testing.T) {
	if _, err := Open("/dev/null", 0); err == nil {
		t.Fatal("expected error")
	}
}
