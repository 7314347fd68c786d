package ioman

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/skycoin/dlfree/internal/ioutil"
)

// Status is the outcome of a socket or channel I/O step.
type Status int

// I/O outcomes. StatusAgain means no progress could be made before the
// socket deadline; StatusDone means a body read reached its target.
const (
	StatusOK Status = iota
	StatusAgain
	StatusEOF
	StatusErr
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusAgain:
		return "AGAIN"
	case StatusEOF:
		return "EOF"
	case StatusErr:
		return "ERR"
	case StatusDone:
		return "DONE"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// ErrNotConnected is returned by ConnectStatus before a connect attempt
// has finished.
var ErrNotConnected = errors.New("socket is not connected")

// Socket wraps one TCP connection. Nagle's algorithm is always disabled.
type Socket struct {
	raddr *net.TCPAddr

	mu      sync.Mutex
	conn    *net.TCPConn
	connErr error
	closed  ioutil.Flag
}

// NewSocket wraps an established connection.
func NewSocket(conn *net.TCPConn) (*Socket, error) {
	if err := conn.SetNoDelay(true); err != nil {
		return nil, errors.Wrap(err, "failed to set TCP_NODELAY")
	}
	raddr, _ := conn.RemoteAddr().(*net.TCPAddr) // nolint: errcheck
	return &Socket{raddr: raddr, conn: conn}, nil
}

// NewConnectSocket resolves addr:port for a later Connect. Only resolution
// failures are reported here.
func NewConnectSocket(addr string, port int) (*Socket, error) {
	raddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s:%d", addr, port)
	}
	return &Socket{raddr: raddr, connErr: ErrNotConnected}, nil
}

// Connect dials the peer. The outcome is also kept for ConnectStatus.
func (s *Socket) Connect(ctx context.Context) error {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", s.raddr.String())
	if err == nil {
		conn := c.(*net.TCPConn)
		if err = conn.SetNoDelay(true); err != nil {
			conn.Close() // nolint: errcheck
		} else {
			s.mu.Lock()
			if s.closed.IsSet() {
				err = io.ErrClosedPipe
				conn.Close() // nolint: errcheck
			} else {
				s.conn = conn
			}
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.connErr = err
	s.mu.Unlock()
	return err
}

// Dial resolves and connects to addr:port.
func Dial(ctx context.Context, addr string, port int) (*Socket, error) {
	s, err := NewConnectSocket(addr, port)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", s.raddr)
	}
	return s, nil
}

// ConnectStatus reports the error of the last connect attempt, nil once
// connected.
func (s *Socket) ConnectStatus() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connErr
}

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() *net.TCPAddr {
	return s.raddr
}

// LocalPort returns the local port of the connection, 0 if unconnected.
func (s *Socket) LocalPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0
	}
	return s.conn.LocalAddr().(*net.TCPAddr).Port
}

// SetDeadline bounds the next TrySend and TryRecv calls. A zero t blocks
// indefinitely.
func (s *Socket) SetDeadline(t time.Time) error {
	c := s.tcp()
	if c == nil {
		return ErrNotConnected
	}
	return c.SetDeadline(t)
}

func (s *Socket) tcp() *net.TCPConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// TrySend writes from b and returns the number of bytes written.
func (s *Socket) TrySend(b []byte) (int, Status) {
	c := s.tcp()
	if c == nil {
		return 0, StatusErr
	}
	n, err := c.Write(b)
	return n, status(err)
}

// TryRecv reads into b and returns the number of bytes read.
func (s *Socket) TryRecv(b []byte) (int, Status) {
	c := s.tcp()
	if c == nil {
		return 0, StatusErr
	}
	n, err := c.Read(b)
	if n > 0 && err == io.EOF {
		return n, StatusOK
	}
	return n, status(err)
}

func status(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case err == io.EOF:
		return StatusEOF
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return StatusAgain
	}
	return StatusErr
}

// Close closes the connection. Further calls do nothing.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed.Set() || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Listen opens a TCP listener on all interfaces. Port 0 picks a free port.
func Listen(port int) (*net.TCPListener, error) {
	l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on port %d", port)
	}
	return l, nil
}
