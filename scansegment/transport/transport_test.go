package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scansegment"
)

func TestDatagramTransport_RecvSegment(t *testing.T) {
	sock := NewMockDatagramSocket([][]byte{[]byte("telegram-one"), []byte("telegram-two")})
	tr := NewDatagramTransport(sock, 1500)

	ctx := context.Background()
	got, err := tr.RecvSegment(ctx)
	require.NoError(t, err)
	require.Equal(t, "telegram-one", string(got))

	got, err = tr.RecvSegment(ctx)
	require.NoError(t, err)
	require.Equal(t, "telegram-two", string(got))

	require.NoError(t, tr.Close())
	require.True(t, sock.Closed)
}

type mockDatagramFactory struct{ sock *MockDatagramSocket }

func (f mockDatagramFactory) ListenPacket(network, address string) (DatagramSocket, error) {
	return f.sock, nil
}

func TestListenDatagram_SetsReceiveBuffer(t *testing.T) {
	sock := NewMockDatagramSocket(nil)
	_, err := ListenDatagram(mockDatagramFactory{sock: sock}, "udp", "127.0.0.1:0", 1500, 2*1024*1024)
	require.NoError(t, err)
	require.Equal(t, 2*1024*1024, sock.ReadBufferSize)
}

func TestListenDatagram_BufferFailureIsNotFatal(t *testing.T) {
	sock := NewMockDatagramSocket(nil)
	sock.SetReadBufferError = errors.New("operation not permitted")
	_, err := ListenDatagram(mockDatagramFactory{sock: sock}, "udp", "127.0.0.1:0", 1500, 2*1024*1024)
	require.NoError(t, err)
}

func TestDatagramTransport_CancelledContext(t *testing.T) {
	sock := NewMockDatagramSocket(nil)
	tr := NewDatagramTransport(sock, 1500)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.RecvSegment(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDatagramTransport_EOFMapsToTransportClosed(t *testing.T) {
	sock := NewMockDatagramSocket(nil)
	sock.ReadError = io.EOF
	tr := NewDatagramTransport(sock, 1500)

	_, err := tr.RecvSegment(context.Background())
	require.ErrorIs(t, err, scansegment.ErrTransportClosed)
}

func TestDatagramTransport_ClosedSocketMapsToTransportClosed(t *testing.T) {
	sock := NewMockDatagramSocket(nil)
	sock.Closed = true
	tr := NewDatagramTransport(sock, 1500)

	_, err := tr.RecvSegment(context.Background())
	require.ErrorIs(t, err, scansegment.ErrTransportClosed)
}

func TestStreamTransport_EOFMapsToTransportClosed(t *testing.T) {
	conn := NewMockStreamConn(nil)
	conn.ReadError = io.EOF
	ex := &fakeExtractor{}
	tr := NewStreamTransport(conn, ex, 64)

	_, err := tr.RecvSegment(context.Background())
	require.ErrorIs(t, err, scansegment.ErrTransportClosed)
}

func TestStreamTransport_ClosedConnMapsToTransportClosed(t *testing.T) {
	conn := NewMockStreamConn(nil)
	conn.ReadError = net.ErrClosed
	ex := &fakeExtractor{}
	tr := NewStreamTransport(conn, ex, 64)

	_, err := tr.RecvSegment(context.Background())
	require.ErrorIs(t, err, scansegment.ErrTransportClosed)
}

func TestStreamTransport_EOFWithFinalBytesIsNotDropped(t *testing.T) {
	conn := NewMockStreamConn([][]byte{[]byte("chunk")})
	conn.ReadError = io.EOF
	conn.EOFWithLastChunk = true
	ex := &fakeExtractor{complete: [][]byte{[]byte("chunk")}}
	tr := NewStreamTransport(conn, ex, 64)

	got, err := tr.RecvSegment(context.Background())
	require.NoError(t, err)
	require.Equal(t, "chunk", string(got))
}

func TestStreamTransport_FeedsExtractorUntilComplete(t *testing.T) {
	conn := NewMockStreamConn([][]byte{[]byte("chu"), []byte("nk")})
	ex := &fakeExtractor{complete: [][]byte{[]byte("chunk")}}
	tr := NewStreamTransport(conn, ex, 64)

	got, err := tr.RecvSegment(context.Background())
	require.NoError(t, err)
	require.Equal(t, "chunk", string(got))
}

// fakeExtractor emits complete[0] exactly once, as soon as at least that
// many bytes have been fed to it across Feed calls; the fed bytes are not
// compared, and later entries of complete are never emitted.
type fakeExtractor struct {
	fed      []byte
	complete [][]byte
	emitted  bool
}

func (f *fakeExtractor) Feed(data []byte) { f.fed = append(f.fed, data...) }

func (f *fakeExtractor) Next() ([]byte, bool) {
	if f.emitted || len(f.complete) == 0 {
		return nil, false
	}
	want := f.complete[0]
	if len(f.fed) < len(want) {
		return nil, false
	}
	f.emitted = true
	return want, true
}
