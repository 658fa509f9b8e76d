package scansegment

import "log"

// Logf is the package-level diagnostic logger used for non-fatal events
// that a caller may still want visibility into: extractor resyncs,
// skipped telegrams under the skip-and-log receiver policy, and
// receive-buffer warnings. It defaults to log.Printf but may be replaced
// by SetLogger, e.g. to redirect into a caller's own logger or to mute it
// in tests.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
