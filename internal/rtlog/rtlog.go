// Package rtlog provides the component-tagged loggers used across corert.
package rtlog

import (
	logging "github.com/ipfs/go-log/v2"
)

// Named returns a logger tagged with the given component name, matching
// the one-logger-per-package convention used throughout the runtime.
func Named(component string) *logging.ZapEventLogger {
	return logging.Logger(component)
}

// SetDebug flips every corert component logger to debug level. Intended
// for use by cmd/corertd when -debug is passed; the core packages never
// call this themselves.
func SetDebug(components ...string) {
	for _, c := range components {
		logging.SetLogLevel(c, "debug")
	}
}
