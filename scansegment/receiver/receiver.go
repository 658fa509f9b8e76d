// Package receiver binds a transport adapter to a telegram decoder and
// exposes the "collect N segments" operation spec section 5 describes.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/scansegment"
)

// Transport is satisfied by transport.DatagramTransport and
// transport.StreamTransport: the one operation a Receiver needs is "block
// until the next whole telegram's bytes are available."
type Transport interface {
	RecvSegment(ctx context.Context) ([]byte, error)
	Close() error
}

// Decoder parses one complete telegram (body plus trailing CRC) into a
// Segment. compact.Decode and msgpack.Decode both satisfy this.
type Decoder func(tele []byte) (*scansegment.Segment, error)

// ErrorPolicy controls what ReceiveSegments does when a telegram fails
// to decode.
type ErrorPolicy int

const (
	// FailFast returns the decode error immediately from ReceiveSegments.
	// This is the default: the zero value of Config.OnError is FailFast,
	// per spec 4.7 ("by default, fail fast").
	FailFast ErrorPolicy = iota
	// SkipAndLog logs the decode error via scansegment.Logf, counts it in
	// Stats, and keeps collecting toward n.
	SkipAndLog
)

// Config configures a Receiver.
type Config struct {
	Transport Transport
	Decoder   Decoder
	Stats     scansegment.Stats
	OnError   ErrorPolicy
}

// Receiver is the façade spec section 5 describes: it binds one
// transport to one decoder and collects decoded segments for a caller
// that doesn't want to see raw bytes or re-framing at all.
type Receiver struct {
	sessionID string
	transport Transport
	decode    Decoder
	stats     scansegment.Stats
	onError   ErrorPolicy
}

// New builds a Receiver from cfg. Stats defaults to scansegment.NoopStats
// when cfg.Stats is nil, the same default network.NewUDPListener applies.
func New(cfg Config) *Receiver {
	stats := cfg.Stats
	if stats == nil {
		stats = scansegment.NoopStats
	}
	r := &Receiver{
		sessionID: uuid.New().String(),
		transport: cfg.Transport,
		decode:    cfg.Decoder,
		stats:     stats,
		onError:   cfg.OnError,
	}
	scansegment.Logf("receiver %s: started", r.sessionID)
	return r
}

// ReceiveSegments blocks until it has collected n decoded segments,
// returning parallel segments/frame-numbers/segment-counters slices
// (spec 5's receive_segments contract). It returns short, with no error,
// if ctx is cancelled before n segments are collected — a caller driving
// a clean shutdown is expected to check len(segments) < n itself.
func (r *Receiver) ReceiveSegments(ctx context.Context, n int) (segments []*scansegment.Segment, frameNumbers []uint32, segmentCounters []uint32, err error) {
	segments = make([]*scansegment.Segment, 0, n)
	frameNumbers = make([]uint32, 0, n)
	segmentCounters = make([]uint32, 0, n)

	for len(segments) < n {
		tele, recvErr := r.transport.RecvSegment(ctx)
		if recvErr != nil {
			if errors.Is(recvErr, context.Canceled) || errors.Is(recvErr, context.DeadlineExceeded) {
				return segments, frameNumbers, segmentCounters, nil
			}
			return segments, frameNumbers, segmentCounters, fmt.Errorf("receiver %s: %w", r.sessionID, recvErr)
		}

		r.stats.AddTelegram(len(tele))
		seg, decErr := r.decode(tele)
		if decErr != nil {
			r.stats.AddDecodeError()
			if r.onError == FailFast {
				return segments, frameNumbers, segmentCounters, decErr
			}
			scansegment.Logf("receiver %s: skipping telegram, decode failed: %v", r.sessionID, decErr)
			continue
		}

		segments = append(segments, seg)
		frameNumbers = append(frameNumbers, seg.FrameNumber)
		segmentCounters = append(segmentCounters, seg.SegmentCounter)
	}

	return segments, frameNumbers, segmentCounters, nil
}

// CloseConnection releases the underlying transport.
func (r *Receiver) CloseConnection() error {
	scansegment.Logf("receiver %s: closing", r.sessionID)
	return r.transport.Close()
}
