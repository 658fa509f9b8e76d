package scansegment

import "errors"

// Sentinel error kinds. Decoders and extractors wrap these with
// fmt.Errorf("...: %w", ErrX) so callers can errors.Is against a stable
// kind while still getting a message naming the offending field/offset.
var (
	// ErrMalformedTelegram covers bad magic, truncated bodies, and
	// impossible field dimensions.
	ErrMalformedTelegram = errors.New("scansegment: malformed telegram")

	// ErrUnsupportedVersion is returned when a COMPACT telegram's version
	// field is not the one value this decoder understands (4).
	ErrUnsupportedVersion = errors.New("scansegment: unsupported compact version")

	// ErrCrcMismatch is returned when the trailing CRC word does not
	// match the CRC computed over the telegram's covered region.
	ErrCrcMismatch = errors.New("scansegment: crc mismatch")

	// ErrMissingField is returned by the MSGPACK decoder when a mandatory
	// key is absent from the wire map.
	ErrMissingField = errors.New("scansegment: missing field")

	// ErrTypeMismatch is returned by the MSGPACK decoder when a value's
	// wire type contradicts its schema.
	ErrTypeMismatch = errors.New("scansegment: type mismatch")

	// ErrTransportClosed is returned when the underlying socket ended, or
	// was closed, while a telegram was still incomplete.
	ErrTransportClosed = errors.New("scansegment: transport closed")
)
