package receiver

import (
	"github.com/banshee-data/scansegment"
	"github.com/banshee-data/scansegment/compact"
	"github.com/banshee-data/scansegment/msgpack"
)

// NewCompact builds a Receiver wired to the COMPACT decoder.
func NewCompact(transport Transport, stats scansegment.Stats, onError ErrorPolicy) *Receiver {
	return New(Config{Transport: transport, Decoder: compact.Decode, Stats: stats, OnError: onError})
}

// NewMsgpack builds a Receiver wired to the MSGPACK decoder.
func NewMsgpack(transport Transport, stats scansegment.Stats, onError ErrorPolicy) *Receiver {
	return New(Config{Transport: transport, Decoder: msgpack.Decode, Stats: stats, OnError: onError})
}
