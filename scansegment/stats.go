package scansegment

import "sync/atomic"

// Stats is implemented by anything that wants visibility into a
// receiver's traffic. A Receiver never holds a nil Stats: receiver.New
// installs NoopStats when the caller doesn't supply one, the same guard
// network.NewUDPListener applies for its PacketStatsInterface. The stream
// extractors accept a nil Stats and then skip the notification.
type Stats interface {
	AddTelegram(bytes int)
	AddDecodeError()
	AddResync()
}

// Counters is a concrete, concurrency-safe Stats implementation a caller
// can construct, share across goroutines, and snapshot periodically (e.g.
// from a time.Ticker loop in the CLI front end).
type Counters struct {
	telegrams  atomic.Int64
	bytes      atomic.Int64
	decodeErrs atomic.Int64
	resyncs    atomic.Int64
}

func (c *Counters) AddTelegram(n int) {
	c.telegrams.Add(1)
	c.bytes.Add(int64(n))
}

func (c *Counters) AddDecodeError() { c.decodeErrs.Add(1) }
func (c *Counters) AddResync()      { c.resyncs.Add(1) }

// Snapshot is a point-in-time copy of Counters' values.
type Snapshot struct {
	Telegrams    int64
	Bytes        int64
	DecodeErrors int64
	Resyncs      int64
}

// Snapshot reads the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Telegrams:    c.telegrams.Load(),
		Bytes:        c.bytes.Load(),
		DecodeErrors: c.decodeErrs.Load(),
		Resyncs:      c.resyncs.Load(),
	}
}

type noopStats struct{}

func (noopStats) AddTelegram(int) {}
func (noopStats) AddDecodeError() {}
func (noopStats) AddResync()      {}

// NoopStats is a Stats that discards everything. Used as the default when
// a receiver is constructed without an explicit Stats.
var NoopStats Stats = noopStats{}
