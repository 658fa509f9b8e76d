// Package compact decodes and re-frames the COMPACT (fixed-layout binary)
// scan-segment telegram encoding described in spec section 4.3/4.4.
package compact

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/banshee-data/scansegment"
)

const (
	startOfFrame     uint32 = 0x02020202
	supportedVersion uint32 = 4

	headerSize = 4 + 4 + 8 + 8 + 4 + 4 // start_of_frame..size_module_0
	// moduleFixedPrefix is the byte length of a module's metadata fields
	// that do not scale with lines_in_module: segment_counter,
	// frame_number, sender_id, lines_in_module, beams_per_scan,
	// echos_per_beam.
	moduleFixedPrefix = 4 * 6
	// moduleTrailerSize is the byte length of distance_scaling_factor,
	// next_module_size, reserved1, data_content_echos, data_content_beams,
	// reserved2.
	moduleTrailerSize = 4 + 4 + 1 + 1 + 1 + 1
	crcSize           = 4

	bitDistance     = 1 << 0
	bitRSSI         = 1 << 1
	bitProperties   = 1 << 0
	bitChannelTheta = 1 << 1
)

var order = binary.LittleEndian

// Header is the fixed COMPACT telegram header (spec 4.3).
type Header struct {
	CommandID         uint32
	TelegramCounter   uint64
	TimestampTransmit uint64
	Version           uint32
	SizeModule0       uint32
}

// Decode parses one complete COMPACT telegram, including its trailing CRC
// word, into a Segment. It verifies the start-of-frame magic, the version,
// cross-field array-length invariants, and the CRC before returning.
func Decode(tele []byte) (*scansegment.Segment, error) {
	if len(tele) < headerSize+crcSize {
		return nil, fmt.Errorf("compact: telegram shorter than header+crc (%d bytes): %w", len(tele), scansegment.ErrMalformedTelegram)
	}

	sof := order.Uint32(tele[0:4])
	if sof != startOfFrame {
		return nil, fmt.Errorf("compact: start_of_frame 0x%08X != 0x%08X: %w", sof, startOfFrame, scansegment.ErrMalformedTelegram)
	}

	hdr := Header{
		CommandID:         order.Uint32(tele[4:8]),
		TelegramCounter:   order.Uint64(tele[8:16]),
		TimestampTransmit: order.Uint64(tele[16:24]),
		Version:           order.Uint32(tele[24:28]),
		SizeModule0:       order.Uint32(tele[28:32]),
	}

	// Verify the CRC before trusting any other header field: a corrupted
	// telegram that happens to flip a bit in the version field must be
	// reported as a CRC mismatch, not masked as an unsupported version.
	covered := tele[:len(tele)-crcSize]
	wantCRC := order.Uint32(tele[len(tele)-crcSize:])
	gotCRC := scansegment.CRC32(covered)
	if gotCRC != wantCRC {
		return nil, fmt.Errorf("compact: crc 0x%08X != wire 0x%08X: %w", gotCRC, wantCRC, scansegment.ErrCrcMismatch)
	}

	if hdr.Version != supportedVersion {
		return nil, fmt.Errorf("compact: version %d != %d: %w", hdr.Version, supportedVersion, scansegment.ErrUnsupportedVersion)
	}

	seg := &scansegment.Segment{
		TelegramCounter:   hdr.TelegramCounter,
		TimestampTransmit: hdr.TimestampTransmit,
	}

	offset := headerSize
	size := hdr.SizeModule0
	for {
		if size == 0 {
			return nil, fmt.Errorf("compact: module declares zero size: %w", scansegment.ErrMalformedTelegram)
		}
		end := offset + int(size)
		if end > len(covered) {
			return nil, fmt.Errorf("compact: module size %d overruns telegram at offset %d: %w", size, offset, scansegment.ErrMalformedTelegram)
		}
		mod, next, err := decodeModule(covered[offset:end])
		if err != nil {
			return nil, err
		}
		seg.Modules = append(seg.Modules, *mod)
		seg.SegmentCounter = mod.SegmentCounter
		seg.FrameNumber = mod.FrameNumber
		seg.SenderID = mod.SenderID

		offset = end
		if next == 0 {
			break
		}
		size = next
	}

	if len(seg.Modules) == 0 {
		return nil, fmt.Errorf("compact: telegram carries no modules: %w", scansegment.ErrMalformedTelegram)
	}

	return seg, nil
}

// ModuleMetadataPrefix reads just the fields needed to locate a module's
// next_module_size without decoding its full measurement block: the
// stream extractor uses this to discover how many more bytes the next
// module requires (spec 4.4).
func ModuleMetadataPrefix(buf []byte) (linesInModule uint32, err error) {
	if len(buf) < moduleFixedPrefix {
		return 0, fmt.Errorf("compact: module shorter than fixed metadata prefix: %w", scansegment.ErrMalformedTelegram)
	}
	return order.Uint32(buf[12:16]), nil
}

// NextModuleSizeOffset returns the byte offset, within a module's bytes,
// of its next_module_size field, given that module's lines_in_module.
func NextModuleSizeOffset(linesInModule uint32) int {
	return moduleFixedPrefix + int(linesInModule)*(8+8+4+4+4) + 4 // +4 skips distance_scaling_factor
}

func decodeModule(buf []byte) (*scansegment.Module, uint32, error) {
	if len(buf) < moduleFixedPrefix {
		return nil, 0, fmt.Errorf("compact: module shorter than fixed metadata prefix (%d bytes): %w", len(buf), scansegment.ErrMalformedTelegram)
	}

	mod := &scansegment.Module{
		SegmentCounter: order.Uint32(buf[0:4]),
		FrameNumber:    order.Uint32(buf[4:8]),
		SenderID:       order.Uint32(buf[8:12]),
		LinesInModule:  order.Uint32(buf[12:16]),
		BeamsPerScan:   order.Uint32(buf[16:20]),
		EchosPerBeam:   order.Uint32(buf[20:24]),
	}

	lines := int(mod.LinesInModule)
	beams := int(mod.BeamsPerScan)
	echos := int(mod.EchosPerBeam)
	if lines <= 0 || beams <= 0 || echos <= 0 {
		return nil, 0, fmt.Errorf("compact: non-positive dimensions (lines=%d beams=%d echos=%d): %w", lines, beams, echos, scansegment.ErrMalformedTelegram)
	}

	offset := moduleFixedPrefix
	readU64Array := func(n int) ([]uint64, error) {
		need := n * 8
		if offset+need > len(buf) {
			return nil, fmt.Errorf("compact: truncated u64 array at offset %d: %w", offset, scansegment.ErrMalformedTelegram)
		}
		out := make([]uint64, n)
		for i := 0; i < n; i++ {
			out[i] = order.Uint64(buf[offset : offset+8])
			offset += 8
		}
		return out, nil
	}
	readF32Array := func(n int) ([]float32, error) {
		need := n * 4
		if offset+need > len(buf) {
			return nil, fmt.Errorf("compact: truncated f32 array at offset %d: %w", offset, scansegment.ErrMalformedTelegram)
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(order.Uint32(buf[offset : offset+4]))
			offset += 4
		}
		return out, nil
	}

	var err error
	if mod.TimestampStart, err = readU64Array(lines); err != nil {
		return nil, 0, err
	}
	if mod.TimestampStop, err = readU64Array(lines); err != nil {
		return nil, 0, err
	}
	if mod.Phi, err = readF32Array(lines); err != nil {
		return nil, 0, err
	}
	if mod.ThetaStart, err = readF32Array(lines); err != nil {
		return nil, 0, err
	}
	if mod.ThetaStop, err = readF32Array(lines); err != nil {
		return nil, 0, err
	}

	if offset+moduleTrailerSize > len(buf) {
		return nil, 0, fmt.Errorf("compact: truncated module trailer at offset %d: %w", offset, scansegment.ErrMalformedTelegram)
	}
	mod.DistanceScalingFactor = math.Float32frombits(order.Uint32(buf[offset : offset+4]))
	offset += 4
	nextModuleSize := order.Uint32(buf[offset : offset+4])
	offset += 4
	// reserved1
	offset++
	contentEchos := buf[offset]
	offset++
	contentBeams := buf[offset]
	offset++
	// reserved2
	offset++

	mod.Content = scansegment.ChannelContent{
		Distance:     contentEchos&bitDistance != 0,
		RSSI:         contentEchos&bitRSSI != 0,
		Properties:   contentBeams&bitProperties != 0,
		ChannelTheta: contentBeams&bitChannelTheta != 0,
	}

	mod.Lines = make([]scansegment.LineData, lines)
	for li := 0; li < lines; li++ {
		line := scansegment.LineData{}

		if mod.Content.Distance {
			line.Distance = make([][]float32, echos)
			for e := 0; e < echos; e++ {
				need := beams * 2
				if offset+need > len(buf) {
					return nil, 0, fmt.Errorf("compact: truncated distance data at offset %d: %w", offset, scansegment.ErrMalformedTelegram)
				}
				row := make([]float32, beams)
				for b := 0; b < beams; b++ {
					raw := order.Uint16(buf[offset : offset+2])
					row[b] = float32(raw) * mod.DistanceScalingFactor
					offset += 2
				}
				line.Distance[e] = row
			}
		}

		if mod.Content.RSSI {
			line.RSSI = make([][]uint16, echos)
			for e := 0; e < echos; e++ {
				need := beams * 2
				if offset+need > len(buf) {
					return nil, 0, fmt.Errorf("compact: truncated rssi data at offset %d: %w", offset, scansegment.ErrMalformedTelegram)
				}
				row := make([]uint16, beams)
				for b := 0; b < beams; b++ {
					row[b] = order.Uint16(buf[offset : offset+2])
					offset += 2
				}
				line.RSSI[e] = row
			}
		}

		if mod.Content.Properties {
			if offset+beams > len(buf) {
				return nil, 0, fmt.Errorf("compact: truncated properties data at offset %d: %w", offset, scansegment.ErrMalformedTelegram)
			}
			props := make([]uint8, beams)
			copy(props, buf[offset:offset+beams])
			offset += beams
			line.Properties = props
		}

		if mod.Content.ChannelTheta {
			need := beams * 2
			if offset+need > len(buf) {
				return nil, 0, fmt.Errorf("compact: truncated channel_theta data at offset %d: %w", offset, scansegment.ErrMalformedTelegram)
			}
			theta := make([]float32, beams)
			for b := 0; b < beams; b++ {
				raw := order.Uint16(buf[offset : offset+2])
				theta[b] = float16.Frombits(raw).Float32()
				offset += 2
			}
			line.ChannelTheta = theta
		}

		mod.Lines[li] = line
	}

	return mod, nextModuleSize, nil
}
