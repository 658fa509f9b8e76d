package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

type serialConn struct{ port serial.Port }

func (s serialConn) Read(p []byte) (int, error) { return s.port.Read(p) }

func (s serialConn) SetReadTimeoutDeadline(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

func (s serialConn) Close() error { return s.port.Close() }

// DialStreamSerial opens a serial port and wraps it as a StreamTransport.
// A serial line carries the same back-to-back telegram stream a TCP
// connection does, so re-framing works identically once bytes arrive
// (spec 4.4/4.5 make no assumption about the underlying byte transport).
func DialStreamSerial(portName string, mode *serial.Mode, extractor Extractor, bufSize int) (*StreamTransport, error) {
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open serial %s: %w", portName, err)
	}
	return NewStreamTransport(serialConn{port: port}, extractor, bufSize), nil
}
