// Package netconn implements the datagram channel the session driver
// is built against: a connected UDP socket with non-blocking send and
// poll-with-timeout receive. Hostname resolution and socket
// teardown live here as the concrete implementation of the driver's
// abstract Channel interface.
package netconn

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gmelodie/slowperipheral/common"
	"github.com/gmelodie/slowperipheral/util/assert"
)

// ErrTimeout identifies a Recv that saw no datagram before the
// requested deadline. Recv returns a fresh error that matches
// ErrTimeout under errors.Is, reports Timeout() == true and wraps the
// net.Error that triggered it, so callers can tell a normal idle poll
// apart from a real receive failure.
var ErrTimeout = &timeoutError{}

type timeoutError struct {
	underlying net.Error
}

func (e *timeoutError) Error() string { return "netconn: receive timed out" }
func (e *timeoutError) Timeout() bool { return true }
func (e *timeoutError) Unwrap() error { return e.underlying }
func (e *timeoutError) Is(target error) bool { return target == ErrTimeout }

// Conn is a single, already-connected UDP socket to one peer.
type Conn struct {
	udp *net.UDPConn
}

// Dial resolves host (hostname or literal IP) and connects a UDP
// socket to host:port. No handshake occurs at this layer; SLOW's own
// CONNECT/SETUP exchange happens above it.
func Dial(host string, port uint16) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("netconn: resolve %s: %w", host, err)
	}

	udp, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("netconn: dial %s: %w", raddr, err)
	}

	return &Conn{udp: udp}, nil
}

// Send best-effort writes b to the peer. The driver never inspects
// this error beyond logging it; datagram loss is covered entirely by
// retransmission.
func (c *Conn) Send(b []byte) error {
	assert.IsNotNil(c.udp, "netconn: Send called on a closed connection")
	_, err := c.udp.Write(b)
	return err
}

// Recv blocks for up to timeout for one inbound datagram. If the
// deadline elapses first it returns an error matching ErrTimeout.
func (c *Conn) Recv(timeout time.Duration) ([]byte, error) {
	assert.IsNotNil(c.udp, "netconn: Recv called on a closed connection")

	if err := c.udp.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("netconn: set read deadline: %w", err)
	}

	buf := make([]byte, common.UDPRecvBufferBytes)
	n, err := c.udp.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &timeoutError{underlying: netErr}
		}
		return nil, err
	}

	return buf[:n], nil
}

// Close closes the underlying socket. Safe to call once; the CLI entry
// point defers it right after Dial succeeds.
func (c *Conn) Close() error {
	if c.udp == nil {
		return nil
	}
	err := c.udp.Close()
	c.udp = nil
	return err
}
