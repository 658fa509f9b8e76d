package receiver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scansegment"
)

type fakeTransport struct {
	teles  [][]byte
	index  int
	closed bool
}

func (f *fakeTransport) RecvSegment(ctx context.Context) ([]byte, error) {
	if f.index >= len(f.teles) {
		return nil, context.Canceled
	}
	tele := f.teles[f.index]
	f.index++
	return tele, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func decodeFrame(n byte) Decoder {
	return func(tele []byte) (*scansegment.Segment, error) {
		if len(tele) == 0 {
			return nil, errors.New("empty telegram")
		}
		return &scansegment.Segment{
			FrameNumber:    uint32(n),
			SegmentCounter: uint32(tele[0]),
		}, nil
	}
}

func TestReceiveSegments_CollectsN(t *testing.T) {
	tr := &fakeTransport{teles: [][]byte{{1}, {2}, {3}}}
	r := New(Config{
		Transport: tr,
		Decoder:   decodeFrame(7),
	})

	segs, frames, counters, err := r.ReceiveSegments(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	require.Equal(t, []uint32{7, 7, 7}, frames)
	require.Equal(t, []uint32{1, 2, 3}, counters)
}

func TestReceiveSegments_StopsShortOnCancellation(t *testing.T) {
	tr := &fakeTransport{teles: [][]byte{{1}}}
	r := New(Config{Transport: tr, Decoder: decodeFrame(7)})

	segs, _, _, err := r.ReceiveSegments(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, segs, 1)
}

func TestReceiveSegments_SkipAndLogContinues(t *testing.T) {
	tr := &fakeTransport{teles: [][]byte{{}, {2}}}
	r := New(Config{Transport: tr, Decoder: decodeFrame(7), OnError: SkipAndLog})

	segs, _, counters, err := r.ReceiveSegments(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, []uint32{2}, counters)
}

func TestReceiveSegments_FailFastReturnsError(t *testing.T) {
	tr := &fakeTransport{teles: [][]byte{{}, {2}}}
	r := New(Config{Transport: tr, Decoder: decodeFrame(7), OnError: FailFast})

	_, _, _, err := r.ReceiveSegments(context.Background(), 1)
	require.Error(t, err)
}

func TestReceiveSegments_ZeroValueConfigDefaultsToFailFast(t *testing.T) {
	tr := &fakeTransport{teles: [][]byte{{}, {2}}}
	r := New(Config{Transport: tr, Decoder: decodeFrame(7)})

	_, _, _, err := r.ReceiveSegments(context.Background(), 1)
	require.Error(t, err)
}

func TestCloseConnection(t *testing.T) {
	tr := &fakeTransport{}
	r := New(Config{Transport: tr, Decoder: decodeFrame(0)})

	require.NoError(t, r.CloseConnection())
	require.True(t, tr.closed)
}
