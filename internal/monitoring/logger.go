// Package monitoring holds the swappable package-level loggers used across
// the analysis packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf receives low-severity messages such as file names that could not be
// fully parsed. It is a no-op until SetDebugLogger installs a sink.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebugLogger replaces the debug logger. Passing nil mutes it again.
func SetDebugLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Debugf = func(string, ...interface{}) {}
		return
	}
	Debugf = f
}

// Prefixed returns a logger that prepends prefix to every format string.
func Prefixed(prefix string, f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		f(prefix+format, v...)
	}
}
