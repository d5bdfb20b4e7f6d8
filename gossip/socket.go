package gossip

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// Socket owns the node's UDP socket for the lifetime of the process. Receive
// never blocks; Send and Receive report transient failures without retrying,
// leaving recovery policy to the membership client.
type Socket struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool

	buf []byte
}

// OpenSocket binds the UDP socket at the given local address. A bind failure
// is fatal to startup and is the only error surfaced as ErrBindFailed.
func OpenSocket(local string) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", ErrBindFailed, local, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	return &Socket{conn: conn, buf: make([]byte, maxDatagramBytes)}, nil
}

// LocalAddr returns the bound address, useful when binding to port 0.
func (s *Socket) LocalAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.LocalAddr().String()
}

// Send writes one datagram to the peer address. No retry here.
func (s *Socket) Send(peerAddr string, payload []byte) error {
	addr, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return fmt.Errorf("%w: resolve %q: %v", ErrSendFailed, peerAddr, err)
	}
	s.mu.Lock()
	conn, closed := s.conn, s.closed
	s.mu.Unlock()
	if closed || conn == nil {
		return ErrSocketClosed
	}
	if _, err := conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Receive returns the next pending datagram, or ok=false when none is queued.
// The returned slice is owned by the caller.
func (s *Socket) Receive() (peerAddr string, payload []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		return "", nil, false, ErrSocketClosed
	}
	// A deadline in the past turns the blocking read into a poll.
	if err := s.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return "", nil, false, err
	}
	n, from, err := s.conn.ReadFromUDP(s.buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return "", nil, false, nil
		}
		if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
			return "", nil, false, ErrSocketClosed
		}
		return "", nil, false, err
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return from.String(), out, true, nil
}

// Close releases the OS socket. Safe to call more than once.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
