package compact

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scansegment"
)

func sampleModuleSpec() ModuleSpec {
	return ModuleSpec{
		SegmentCounter:        3,
		FrameNumber:           42,
		SenderID:              7,
		TimestampStart:        []uint64{1000},
		TimestampStop:         []uint64{1010},
		Phi:                   []float32{0.1},
		ThetaStart:            []float32{0.0},
		ThetaStop:             []float32{6.28},
		DistanceScalingFactor: 1.0,
		Content: scansegment.ChannelContent{
			Distance:     true,
			RSSI:         true,
			Properties:   true,
			ChannelTheta: true,
		},
		RawDistance:  [][][]uint16{{{100, 200}}},
		RSSI:         [][][]uint16{{{10, 20}}},
		Properties:   [][]uint8{{1, 0}},
		ChannelTheta: [][]float32{{0.0, 1.5}},
	}
}

func sampleTelegram() []byte {
	return Encode(1234, 5678, 1, []ModuleSpec{sampleModuleSpec()})
}

func TestDecode_RoundTrip(t *testing.T) {
	tele := sampleTelegram()

	seg, err := Decode(tele)
	require.NoError(t, err)
	require.Equal(t, uint64(1234), seg.TelegramCounter)
	require.Equal(t, uint64(5678), seg.TimestampTransmit)
	require.Equal(t, uint32(42), seg.FrameNumber)
	require.Equal(t, uint32(3), seg.SegmentCounter)
	require.Len(t, seg.Modules, 1)

	mod := seg.Modules[0]
	require.Equal(t, uint32(1), mod.LinesInModule)
	require.Equal(t, uint32(2), mod.BeamsPerScan)
	require.Equal(t, uint32(1), mod.EchosPerBeam)
	require.True(t, mod.Content.Distance)
	require.True(t, mod.Content.RSSI)
	require.True(t, mod.Content.Properties)
	require.True(t, mod.Content.ChannelTheta)

	require.Len(t, mod.Lines, 1)
	line := mod.Lines[0]
	require.Equal(t, []float32{100, 200}, line.Distance[0])
	require.Equal(t, []uint16{10, 20}, line.RSSI[0])
	require.Equal(t, []uint8{1, 0}, line.Properties)
	require.InDelta(t, 0.0, line.ChannelTheta[0], 1e-3)
	require.InDelta(t, 1.5, line.ChannelTheta[1], 1e-3)
}

func TestDecode_FullStructuralMatch(t *testing.T) {
	tele := sampleTelegram()

	seg, err := Decode(tele)
	require.NoError(t, err)

	want := &scansegment.Segment{
		TelegramCounter:   1234,
		TimestampTransmit: 5678,
		SegmentCounter:    3,
		FrameNumber:       42,
		SenderID:          7,
		Modules: []scansegment.Module{
			{
				SegmentCounter:        3,
				FrameNumber:           42,
				SenderID:              7,
				LinesInModule:         1,
				BeamsPerScan:          2,
				EchosPerBeam:          1,
				TimestampStart:        []uint64{1000},
				TimestampStop:         []uint64{1010},
				Phi:                   []float32{0.1},
				ThetaStart:            []float32{0.0},
				ThetaStop:             []float32{6.28},
				DistanceScalingFactor: 1.0,
				Content: scansegment.ChannelContent{
					Distance: true, RSSI: true, Properties: true, ChannelTheta: true,
				},
				Lines: []scansegment.LineData{
					{
						Distance:     [][]float32{{100, 200}},
						RSSI:         [][]uint16{{10, 20}},
						Properties:   []uint8{1, 0},
						ChannelTheta: []float32{0.0, 1.5},
					},
				},
			},
		},
	}

	// go-cmp tolerates the binary16 round-trip's float imprecision on
	// ChannelTheta where require.Equal would not.
	if diff := cmp.Diff(want, seg, cmp.Comparer(func(a, b float32) bool {
		delta := a - b
		if delta < 0 {
			delta = -delta
		}
		return delta < 1e-3
	})); diff != "" {
		t.Errorf("decoded segment mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_DistanceScaling(t *testing.T) {
	spec := sampleModuleSpec()
	spec.DistanceScalingFactor = 2.5
	tele := Encode(1, 2, 1, []ModuleSpec{spec})

	seg, err := Decode(tele)
	require.NoError(t, err)
	require.InDelta(t, 250.0, seg.Modules[0].Lines[0].Distance[0][0], 1e-3)
	require.InDelta(t, 500.0, seg.Modules[0].Lines[0].Distance[0][1], 1e-3)
}

func TestDecode_TwoModules(t *testing.T) {
	m0 := sampleModuleSpec()
	m1 := sampleModuleSpec()
	m1.SegmentCounter = 4
	tele := Encode(1, 2, 1, []ModuleSpec{m0, m1})

	seg, err := Decode(tele)
	require.NoError(t, err)
	require.Len(t, seg.Modules, 2)
	// Segment-level identity fields take the last module's values.
	require.Equal(t, uint32(4), seg.SegmentCounter)
}

func TestDecode_CrcMismatch(t *testing.T) {
	tele := sampleTelegram()
	corrupted := append([]byte(nil), tele...)
	n := len(corrupted)
	corrupted[n-4], corrupted[n-3], corrupted[n-2], corrupted[n-1] = 0, 0, 0, 0

	_, err := Decode(corrupted)
	require.ErrorIs(t, err, scansegment.ErrCrcMismatch)
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	tele := sampleTelegram()
	order.PutUint32(tele[24:28], 99)
	// Re-stamp the CRC so the failure is specifically about version, not
	// a CRC mismatch masking it.
	covered := tele[:len(tele)-crcSize]
	crc := scansegment.CRC32(covered)
	order.PutUint32(tele[len(tele)-crcSize:], crc)

	_, err := Decode(tele)
	require.ErrorIs(t, err, scansegment.ErrUnsupportedVersion)
}

func TestDecode_TooShort(t *testing.T) {
	_, err := Decode([]byte{0x02, 0x02})
	require.ErrorIs(t, err, scansegment.ErrMalformedTelegram)
}

func TestExtractor_RoundTrip(t *testing.T) {
	tele := sampleTelegram()

	var ex Extractor
	ex.Feed(tele)

	got, ok := ex.Next()
	require.True(t, ok)
	require.Equal(t, tele, got)

	_, ok = ex.Next()
	require.False(t, ok)
}

func TestExtractor_NoiseBeforeMagic(t *testing.T) {
	tele := sampleTelegram()
	noise := make([]byte, 17)
	for i := range noise {
		noise[i] = byte(i + 1)
	}

	var ex Extractor
	ex.Feed(append(noise, tele...))

	got, ok := ex.Next()
	require.True(t, ok)
	require.Equal(t, tele, got)
}

func TestExtractor_BackToBackTelegrams(t *testing.T) {
	a := sampleTelegram()
	spec := sampleModuleSpec()
	spec.SegmentCounter = 9
	b := Encode(2, 3, 1, []ModuleSpec{spec})

	var ex Extractor
	ex.Feed(append(append([]byte(nil), a...), b...))

	first, ok := ex.Next()
	require.True(t, ok)
	require.Equal(t, a, first)

	second, ok := ex.Next()
	require.True(t, ok)
	require.Equal(t, b, second)
}

func TestExtractor_PartialFeed(t *testing.T) {
	tele := sampleTelegram()

	var ex Extractor
	ex.Feed(tele[:len(tele)-1])

	_, ok := ex.Next()
	require.False(t, ok)
	require.Equal(t, StateReadCrc, ex.State())

	ex.Feed(tele[len(tele)-1:])
	got, ok := ex.Next()
	require.True(t, ok)
	require.Equal(t, tele, got)
}

func TestExtractor_FeedByteAtATime(t *testing.T) {
	tele := sampleTelegram()

	var ex Extractor
	for _, b := range tele {
		ex.Feed([]byte{b})
	}

	got, ok := ex.Next()
	require.True(t, ok)
	require.Equal(t, tele, got)
}
