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

// Extractor re-frames whole telegrams out of a byte stream. Both
// compact.Extractor and msgpack.Extractor satisfy this.
type Extractor interface {
	Feed(data []byte)
	Next() ([]byte, bool)
}

// StreamConn is the minimal operation a byte-stream connection needs:
// a bounded-duration read, so StreamTransport can poll for context
// cancellation the same way DatagramTransport polls a socket deadline.
// net.Conn and go.bug.st/serial.Port are each wrapped to satisfy this.
type StreamConn interface {
	Read(p []byte) (int, error)
	SetReadTimeoutDeadline(d time.Duration) error
	Close() error
}

// StreamTransport re-frames telegrams from a back-to-back byte stream,
// feeding everything it reads through an injected Extractor (spec 4.4,
// 4.5, 5 — "a connection-oriented byte transport that must be
// re-framed").
type StreamTransport struct {
	conn      StreamConn
	extractor Extractor
	bufSize   int
}

// NewStreamTransport wraps an already-open connection.
func NewStreamTransport(conn StreamConn, extractor Extractor, bufSize int) *StreamTransport {
	return &StreamTransport{conn: conn, extractor: extractor, bufSize: bufSize}
}

type tcpConn struct{ conn net.Conn }

func (t tcpConn) Read(p []byte) (int, error) { return t.conn.Read(p) }
func (t tcpConn) SetReadTimeoutDeadline(d time.Duration) error {
	return t.conn.SetReadDeadline(time.Now().Add(d))
}
func (t tcpConn) Close() error { return t.conn.Close() }

// DialStreamTCP dials a TCP connection and wraps it as a StreamTransport.
func DialStreamTCP(address string, extractor Extractor, bufSize int) (*StreamTransport, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", address, err)
	}
	return NewStreamTransport(tcpConn{conn: conn}, extractor, bufSize), nil
}

// RecvSegment blocks until the extractor has a complete telegram to
// hand back, reading and feeding bytes from conn as they arrive, or
// until ctx is cancelled.
func (t *StreamTransport) RecvSegment(ctx context.Context) ([]byte, error) {
	for {
		if tele, ok := t.extractor.Next(); ok {
			return tele, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := t.conn.SetReadTimeoutDeadline(readPollInterval); err != nil {
			return nil, fmt.Errorf("transport: set read timeout: %w", err)
		}
		buf := make([]byte, t.bufSize)
		n, err := t.conn.Read(buf)
		// io.Reader permits returning n > 0 alongside a non-nil error (e.g.
		// the final telegram bytes arriving together with io.EOF): feed
		// whatever was read before acting on the error, so that data isn't
		// silently dropped.
		if n > 0 {
			t.extractor.Feed(buf[:n])
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				if tele, ok := t.extractor.Next(); ok {
					return tele, nil
				}
				return nil, fmt.Errorf("transport: stream read: %w", scansegment.ErrTransportClosed)
			}
			return nil, fmt.Errorf("transport: stream read: %w", err)
		}
		if n == 0 {
			// A serial-style read timeout with no error: nothing to
			// feed, go back around and recheck ctx.
			continue
		}
	}
}

// Close releases the underlying connection.
func (t *StreamTransport) Close() error {
	return t.conn.Close()
}
