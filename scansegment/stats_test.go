package scansegment

import "testing"

func TestCounters_Snapshot(t *testing.T) {
	var c Counters
	c.AddTelegram(100)
	c.AddTelegram(50)
	c.AddDecodeError()
	c.AddResync()
	c.AddResync()

	snap := c.Snapshot()
	if snap.Telegrams != 2 {
		t.Errorf("Telegrams = %d, want 2", snap.Telegrams)
	}
	if snap.Bytes != 150 {
		t.Errorf("Bytes = %d, want 150", snap.Bytes)
	}
	if snap.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", snap.DecodeErrors)
	}
	if snap.Resyncs != 2 {
		t.Errorf("Resyncs = %d, want 2", snap.Resyncs)
	}
}

func TestNoopStats_DoesNotPanic(t *testing.T) {
	NoopStats.AddTelegram(10)
	NoopStats.AddDecodeError()
	NoopStats.AddResync()
}
