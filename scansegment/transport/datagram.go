// Package transport adapts datagram and byte-stream connections into the
// single operation a receiver needs: "give me the next complete
// telegram's bytes" (spec section 5). It mirrors the teacher network
// package's socket-interface-plus-factory indirection so both halves can
// be exercised without a real socket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/banshee-data/scansegment"
)

// readPollInterval bounds how long a single blocking read call is allowed
// to run before the transport checks for context cancellation, the same
// polling rhythm network.UDPListener.Start uses around SetReadDeadline.
const readPollInterval = 100 * time.Millisecond

// DatagramSocket is the subset of net.PacketConn a DatagramTransport
// needs. This abstraction enables unit testing without a real socket.
type DatagramSocket interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	SetReadDeadline(t time.Time) error
	// SetReadBuffer sets the size of the operating system's receive
	// buffer. Some OSes clamp or reject this; callers treat failure as
	// a warning, not fatal.
	SetReadBuffer(bytes int) error
	Close() error
}

// DatagramSocketFactory creates DatagramSockets, enabling dependency
// injection of socket creation the way UDPSocketFactory does.
type DatagramSocketFactory interface {
	ListenPacket(network, address string) (DatagramSocket, error)
}

// RealDatagramSocketFactory creates real sockets via net.ListenPacket.
type RealDatagramSocketFactory struct{}

func (RealDatagramSocketFactory) ListenPacket(network, address string) (DatagramSocket, error) {
	conn, err := net.ListenPacket(network, address)
	if err != nil {
		return nil, err
	}
	return realDatagramSocket{conn: conn}, nil
}

type readBufferSetter interface {
	SetReadBuffer(bytes int) error
}

type realDatagramSocket struct{ conn net.PacketConn }

func (r realDatagramSocket) ReadFrom(b []byte) (int, net.Addr, error) { return r.conn.ReadFrom(b) }
func (r realDatagramSocket) SetReadDeadline(t time.Time) error        { return r.conn.SetReadDeadline(t) }
func (r realDatagramSocket) Close() error                             { return r.conn.Close() }

func (r realDatagramSocket) SetReadBuffer(bytes int) error {
	s, ok := r.conn.(readBufferSetter)
	if !ok {
		return fmt.Errorf("transport: underlying connection does not support SetReadBuffer")
	}
	return s.SetReadBuffer(bytes)
}

// DatagramTransport reads whole telegrams one-per-datagram: the wire
// format for MSGPACK/COMPACT over UDP never splits a telegram across
// packets, so no extractor is needed here (spec 4.3/5, "one-per-datagram
// over a connectionless datagram transport").
type DatagramTransport struct {
	sock    DatagramSocket
	bufSize int
}

// NewDatagramTransport wraps an already-open socket.
func NewDatagramTransport(sock DatagramSocket, bufSize int) *DatagramTransport {
	return &DatagramTransport{sock: sock, bufSize: bufSize}
}

// ListenDatagram opens a datagram socket through factory and wraps it.
// If recvBufferBytes is positive, it also asks the OS to size the
// socket's receive buffer accordingly; a LiDAR sender can burst packets
// faster than a small default buffer can hold, silently dropping them
// under load. Some OSes clamp or reject this, so failure only logs a
// warning rather than failing the listen.
func ListenDatagram(factory DatagramSocketFactory, network, address string, bufSize, recvBufferBytes int) (*DatagramTransport, error) {
	sock, err := factory.ListenPacket(network, address)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s %s: %w", network, address, err)
	}
	if recvBufferBytes > 0 {
		if err := sock.SetReadBuffer(recvBufferBytes); err != nil {
			scansegment.Logf("transport: failed to set receive buffer to %d bytes: %v", recvBufferBytes, err)
		}
	}
	return NewDatagramTransport(sock, bufSize), nil
}

// RecvSegment blocks until one datagram arrives, returning its payload,
// or until ctx is cancelled.
func (t *DatagramTransport) RecvSegment(ctx context.Context) ([]byte, error) {
	buf := make([]byte, t.bufSize)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := t.sock.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			return nil, fmt.Errorf("transport: set read deadline: %w", err)
		}
		n, _, err := t.sock.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil, fmt.Errorf("transport: datagram read: %w", scansegment.ErrTransportClosed)
			}
			return nil, fmt.Errorf("transport: datagram read: %w", err)
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

// Close releases the underlying socket.
func (t *DatagramTransport) Close() error {
	return t.sock.Close()
}
