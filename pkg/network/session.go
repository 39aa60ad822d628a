package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/unikmhz/npui-sub001/pkg/logger"
	"github.com/unikmhz/npui-sub001/pkg/metrics"
	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

// State is the lifecycle state of a Session
type State int

const (
	StateClosed State = iota
	StateOpen
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Dialer opens the stream connection to the head-end
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SessionOption customizes a Session
type SessionOption func(*Session)

// WithDialer replaces the default net.Dialer
func WithDialer(d Dialer) SessionOption {
	return func(s *Session) { s.dialer = d }
}

// WithMetrics attaches a metrics collector
func WithMetrics(m *metrics.Collector) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// Session owns one stream connection to the head-end. It is not safe for
// concurrent calls; only State may be read from other goroutines.
type Session struct {
	addr    string
	dialer  Dialer
	log     *logger.Logger
	metrics *metrics.Collector

	conn    net.Conn
	state   State
	stateMu sync.RWMutex
}

// NewSession creates a closed Session for host:port
func NewSession(addr string, connectTimeout time.Duration, log *logger.Logger, opts ...SessionOption) *Session {
	if log == nil {
		log = logger.Nop()
	}
	s := &Session{
		addr:   addr,
		dialer: &net.Dialer{Timeout: connectTimeout},
		log:    log.WithComponent("network.session"),
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the head-end address
func (s *Session) Addr() string {
	return s.addr
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) getConn() net.Conn {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.conn
}

// setState moves an open Session between Open and Authenticated. A closed
// Session stays closed.
func (s *Session) setState(state State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = state
}

// Open connects to the head-end. Opening an open Session is a no-op.
func (s *Session) Open(ctx context.Context) error {
	if s.State() != StateClosed {
		return nil
	}

	for {
		conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return protocol.NewTransportError("open", fmt.Errorf("failed to connect to %s: %w", s.addr, err))
		}
		s.stateMu.Lock()
		s.conn = conn
		s.state = StateOpen
		s.stateMu.Unlock()
		break
	}

	s.metrics.SessionOpened()
	s.log.Debug("Connected to head-end", logger.String("addr", s.addr))
	return nil
}

// Close releases the connection. Closing a closed Session is a no-op.
func (s *Session) Close() error {
	s.stateMu.Lock()
	conn := s.conn
	wasOpen := s.state != StateClosed
	s.conn = nil
	s.state = StateClosed
	s.stateMu.Unlock()

	if !wasOpen || conn == nil {
		return nil
	}
	s.metrics.SessionClosed()
	s.log.Debug("Disconnected from head-end", logger.String("addr", s.addr))
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return protocol.NewTransportError("close", err)
	}
	return nil
}

// Do runs fn inside a scoped Session: it opens the connection when needed
// and always closes it before returning. Cancelling ctx closes the Session,
// which aborts any call blocked on the head-end.
func (s *Session) Do(ctx context.Context, fn func(*Session) error) (err error) {
	if err := s.Open(ctx); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		s.log.Warn("Aborting head-end session", logger.String("addr", s.addr), logger.Error(context.Cause(ctx)))
		_ = s.Close()
	})
	defer func() {
		if !stop() && err != nil {
			err = fmt.Errorf("%w: %w", err, context.Cause(ctx))
		}
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// Send writes the complete frame. Short writes continue where they stopped.
func (s *Session) Send(frame []byte) error {
	conn := s.getConn()
	if conn == nil {
		return protocol.NewTransportError("send", protocol.ErrNotOpen)
	}

	for sent := 0; sent < len(frame); {
		n, err := conn.Write(frame[sent:])
		sent += n
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return s.fail("send", err)
		}
		if n == 0 {
			return s.fail("send", fmt.Errorf("%w after %d of %d bytes", io.ErrShortWrite, sent, len(frame)))
		}
	}
	return nil
}

// RecvExact reads exactly n bytes. A read returning no data means the peer
// closed the connection.
func (s *Session) RecvExact(n int) ([]byte, error) {
	conn := s.getConn()
	if conn == nil {
		return nil, protocol.NewTransportError("recv", protocol.ErrNotOpen)
	}

	buf := make([]byte, n)
	for got := 0; got < n; {
		m, err := conn.Read(buf[got:])
		got += m
		if got == n {
			break
		}
		if err != nil {
			switch {
			case errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, io.EOF):
				return nil, s.fail("recv", fmt.Errorf("%w after %d of %d bytes", protocol.ErrPeerClosed, got, n))
			default:
				return nil, s.fail("recv", err)
			}
		}
		if m == 0 {
			return nil, s.fail("recv", fmt.Errorf("%w after %d of %d bytes", protocol.ErrPeerClosed, got, n))
		}
	}
	return buf, nil
}

// fail closes the Session and wraps err as a transport error
func (s *Session) fail(op string, err error) error {
	s.log.Warn("Head-end connection failed", logger.String("op", op), logger.Error(err))
	_ = s.Close()
	return protocol.NewTransportError(op, err)
}
