package testhelpers

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"
)

// ReadStep is one scripted result of MockConn.Read
type ReadStep struct {
	Data []byte
	Err  error
}

// MockConn is a net.Conn that replays scripted reads and records writes.
// A step with no data and no error models a zero-byte read.
type MockConn struct {
	mu        sync.Mutex
	reads     []ReadStep
	writeErrs []error
	written   bytes.Buffer
	maxWrite  int
	stalled   bool
	closed    bool
}

// NewMockConn creates a connection that returns the given reads in order,
// then io.EOF
func NewMockConn(reads ...ReadStep) *MockConn {
	return &MockConn{reads: reads}
}

// FailWrites makes the next writes return errs in order. A nil entry lets
// that write succeed.
func (c *MockConn) FailWrites(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErrs = append(c.writeErrs, errs...)
}

// LimitWrites caps every successful write at n bytes
func (c *MockConn) LimitWrites(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxWrite = n
}

// StallWrites makes every write accept zero bytes without an error
func (c *MockConn) StallWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalled = true
}

// Written returns everything written so far
func (c *MockConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// IsClosed reports whether Close was called
func (c *MockConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}
	if len(c.reads) == 0 {
		return 0, io.EOF
	}

	step := c.reads[0]
	n := copy(p, step.Data)
	if n < len(step.Data) {
		c.reads[0].Data = step.Data[n:]
		return n, nil
	}
	c.reads = c.reads[1:]
	return n, step.Err
}

func (c *MockConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}
	if len(c.writeErrs) > 0 {
		err := c.writeErrs[0]
		c.writeErrs = c.writeErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if c.stalled {
		return 0, nil
	}
	if c.maxWrite > 0 && len(p) > c.maxWrite {
		p = p[:c.maxWrite]
	}
	return c.written.Write(p)
}

func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *MockConn) LocalAddr() net.Addr  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *MockConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000} }

func (c *MockConn) SetDeadline(time.Time) error      { return nil }
func (c *MockConn) SetReadDeadline(time.Time) error  { return nil }
func (c *MockConn) SetWriteDeadline(time.Time) error { return nil }

// MockDialer hands out Conn after failing with Errs in order
type MockDialer struct {
	Conn net.Conn
	Errs []error

	mu    sync.Mutex
	calls int
}

// DialContext implements the session dialer
func (d *MockDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if len(d.Errs) > 0 {
		err := d.Errs[0]
		d.Errs = d.Errs[1:]
		return nil, err
	}
	return d.Conn, nil
}

// Calls returns the number of dial attempts
func (d *MockDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
