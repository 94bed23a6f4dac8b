// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialport is the blocking byte transport of the node: frames are
// written whole, in order, and the call returns once the bytes are handed to
// the UART.
//
// The gateway side reads the same link line by line.
package serialport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Baud rates of the two node links.
const (
	UplinkBaud = 9600
	DebugBaud  = 115200
)

// ErrClosed is returned when using a closed Port.
var ErrClosed = errors.New("serialport: port closed")

// drainer is implemented by go.bug.st/serial ports.
type drainer interface {
	Drain() error
}

// Port is a serial link.
//
// Transmit is safe for concurrent use; frames from different goroutines are
// never interleaved.
type Port struct {
	name string
	baud int

	mu   sync.Mutex
	conn io.ReadWriteCloser
}

// Open opens the named serial device at baud, 8N1.
func Open(name string, baud int) (*Port, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("serialport: invalid baud rate %d", baud)
	}
	c, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: failed to open %s: %w", name, err)
	}
	return &Port{name: name, baud: baud, conn: c}, nil
}

// New wraps an already open stream, e.g. a pipe or a pty.
func New(name string, baud int, conn io.ReadWriteCloser) *Port {
	return &Port{name: name, baud: baud, conn: conn}
}

// Transmit writes b entirely. Short writes are continued until every byte is
// accepted; a write that makes no progress fails with io.ErrShortWrite.
func (p *Port) Transmit(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ErrClosed
	}
	for len(b) != 0 {
		n, err := p.conn.Write(b)
		if err != nil {
			return fmt.Errorf("serialport: %s: %w", p.name, err)
		}
		if n == 0 {
			return fmt.Errorf("serialport: %s: %w", p.name, io.ErrShortWrite)
		}
		b = b[n:]
	}
	if d, ok := p.conn.(drainer); ok {
		if err := d.Drain(); err != nil {
			return fmt.Errorf("serialport: %s: drain: %w", p.name, err)
		}
	}
	return nil
}

// Write implements io.Writer on top of Transmit.
func (p *Port) Write(b []byte) (int, error) {
	if err := p.Transmit(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// ReadLines calls fn for each non empty line received, with surrounding
// whitespace and line endings removed.
//
// It returns when the port is closed, the stream ends (io.EOF) or ctx is
// canceled (ctx.Err()). Cancelling ctx closes the port.
func (p *Port) ReadLines(ctx context.Context, fn func(line string)) error {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return ErrClosed
	}
	stop := context.AfterFunc(ctx, func() { _ = p.Close() })
	defer stop()
	s := bufio.NewScanner(c)
	for s.Scan() {
		if line := strings.TrimSpace(s.Text()); line != "" {
			fn(line)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("serialport: %s: %w", p.name, err)
	}
	return io.EOF
}

// Close closes the port. Closing twice is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Port) String() string {
	return fmt.Sprintf("serialport{%s@%d}", p.name, p.baud)
}

// Ports lists the serial devices present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: failed to list serial ports: %w", err)
	}
	return ports, nil
}
