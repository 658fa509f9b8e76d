package transport

import (
	"net"
	"time"
)

// MockDatagramSocket implements DatagramSocket for testing, mirroring
// the teacher package's MockUDPSocket: a queue of packets returned in
// order, then a simulated read timeout once exhausted.
type MockDatagramSocket struct {
	Packets      [][]byte
	ReadIndex    int
	Closed       bool
	ReadDeadline time.Time
	ReadError    error

	// ReadBufferSize records the value passed to SetReadBuffer.
	ReadBufferSize int
	// SetReadBufferError is returned by SetReadBuffer if set.
	SetReadBufferError error
}

func NewMockDatagramSocket(packets [][]byte) *MockDatagramSocket {
	return &MockDatagramSocket{Packets: packets}
}

func (m *MockDatagramSocket) ReadFrom(b []byte) (int, net.Addr, error) {
	if m.Closed {
		return 0, nil, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, nil, err
	}
	if m.ReadIndex >= len(m.Packets) {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	n := copy(b, pkt)
	return n, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2115}, nil
}

func (m *MockDatagramSocket) SetReadDeadline(t time.Time) error {
	m.ReadDeadline = t
	return nil
}

func (m *MockDatagramSocket) SetReadBuffer(bytes int) error {
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.ReadBufferSize = bytes
	return nil
}

func (m *MockDatagramSocket) Close() error {
	m.Closed = true
	return nil
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// MockStreamConn implements StreamConn for testing: Read hands back one
// chunk per call from Chunks, then simulates a read timeout (n=0, nil
// error, the go.bug.st/serial convention) once exhausted, unless
// ReadError is set, in which case that error is returned instead (e.g.
// io.EOF or net.ErrClosed, to exercise a mid-telegram transport close).
type MockStreamConn struct {
	Chunks    [][]byte
	ReadIndex int
	Closed    bool
	ReadError error

	// EOFWithLastChunk, if set alongside ReadError, returns the final
	// Chunks entry together with ReadError in the same Read call instead
	// of on a separate call after Chunks is exhausted — exercising the
	// io.Reader-permitted "n > 0 with err != nil" case.
	EOFWithLastChunk bool
}

func NewMockStreamConn(chunks [][]byte) *MockStreamConn {
	return &MockStreamConn{Chunks: chunks}
}

func (m *MockStreamConn) Read(p []byte) (int, error) {
	if m.ReadIndex >= len(m.Chunks) {
		if m.ReadError != nil {
			return 0, m.ReadError
		}
		return 0, nil
	}
	chunk := m.Chunks[m.ReadIndex]
	m.ReadIndex++
	n := copy(p, chunk)
	if m.EOFWithLastChunk && m.ReadIndex == len(m.Chunks) && m.ReadError != nil {
		return n, m.ReadError
	}
	return n, nil
}

func (m *MockStreamConn) SetReadTimeoutDeadline(time.Duration) error { return nil }

func (m *MockStreamConn) Close() error {
	m.Closed = true
	return nil
}
