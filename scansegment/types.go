// Package scansegment decodes LiDAR scan-segment telegrams in the two
// wire encodings a scanner may emit: a self-describing MSGPACK map, and a
// compact fixed-layout binary form (COMPACT). It also re-frames both
// encodings out of an unbounded byte stream and binds a transport to a
// decoder behind a small receiver facade.
//
// See the compact, msgpack, transport and receiver subpackages for the
// format-specific decoders/extractors, the transport adapters, and the
// facade that ties a transport to a decoder.
package scansegment

// Segment is the decoded output of one telegram, regardless of encoding.
// Exactly one of Modules (COMPACT) or Scans (MSGPACK) is populated,
// mirroring which decoder produced it.
type Segment struct {
	TelegramCounter   uint64
	TimestampTransmit uint64
	SegmentCounter    uint32
	FrameNumber       uint32
	SenderID          uint32

	// Availability is only meaningful for MSGPACK telegrams; COMPACT
	// telegrams leave it at zero.
	Availability uint8

	// Modules holds the COMPACT body. Nil for a MSGPACK-decoded segment.
	Modules []Module

	// Scans holds the MSGPACK body. Nil for a COMPACT-decoded segment.
	Scans []Scan
}

// ChannelContent records which per-echo and per-beam channels a COMPACT
// module actually carries, decoded once from the data_content_echos /
// data_content_beams bitfields so downstream code branches on booleans
// instead of re-testing bits.
type ChannelContent struct {
	Distance     bool
	RSSI         bool
	Properties   bool
	ChannelTheta bool
}

// Module is one COMPACT "row strip": a group of scan lines sharing
// azimuth/elevation geometry metadata and a measurement block.
type Module struct {
	SegmentCounter uint32
	FrameNumber    uint32
	SenderID       uint32

	LinesInModule uint32
	BeamsPerScan  uint32
	EchosPerBeam  uint32

	TimestampStart []uint64
	TimestampStop  []uint64
	Phi            []float32
	ThetaStart     []float32
	ThetaStop      []float32

	DistanceScalingFactor float32
	Content               ChannelContent

	// Lines has length LinesInModule; each entry holds the measurement
	// block for one scan line.
	Lines []LineData
}

// LineData is the per-line measurement block of a COMPACT module.
// Distance is already scaled into millimetres (raw * DistanceScalingFactor);
// RSSI is left as raw sensor counts per spec (the scaling factor is not
// documented to apply to it).
type LineData struct {
	// Distance[echo][beam], present iff Content.Distance.
	Distance [][]float32
	// RSSI[echo][beam], present iff Content.RSSI.
	RSSI [][]uint16
	// Properties[beam], present iff Content.Properties.
	Properties []uint8
	// ChannelTheta[beam] in radians, present iff Content.ChannelTheta.
	ChannelTheta []float32
}

// Scan is one MSGPACK line entry ("SegmentData" list element).
type Scan struct {
	BeamCount  uint32
	EchoCount  uint32
	ScanNumber uint32
	ModuleID   uint32
	LayerID    uint32

	TimestampStart uint64
	TimestampStop  uint64

	ThetaStart float32
	ThetaStop  float32
	Phi        float32

	// Distance[echo][beam] in millimetres.
	Distance [][]float32
	// RSSI[echo][beam], raw intensity counts.
	RSSI [][]float32

	Properties   []uint8
	ChannelTheta []float32
}
