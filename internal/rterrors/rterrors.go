// Package rterrors implements the error-handling policy from the design:
// nothing is caught and swallowed inside the core. Recoverable conditions
// are returned as ordinary bool/error results at the call site; the
// classes of error the runtime cannot recover from (invalid API use,
// resource exhaustion, transport failure, dependency protocol violation,
// config error) are fatal and terminate the process with a single
// component-tagged line.
package rterrors

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

// Wrap annotates err with the originating component, preserving it for
// %w-style unwrapping.
func Wrap(component string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", component, err)
}

// Errorf builds a new error tagged with component, in the same spirit as
// the teacher's pervasive xerrors.Errorf("...: %w", err) call sites.
func Errorf(component, format string, args ...interface{}) error {
	return xerrors.Errorf(component+": "+format, args...)
}

// exitFunc is a var so tests can intercept process termination.
var exitFunc = os.Exit

// Fatal logs a single component-tagged diagnostic line and terminates the
// process. It is reserved for the error classes in §7 of the design that
// have no recovery story: invalid API use, resource exhaustion, transport
// failure, protocol violations caught by invariant checks, and config
// errors discovered at init.
func Fatal(component string, err error) {
	log := logging.Logger(component)
	log.Errorf("fatal: %s", err)
	exitFunc(1)
}

// Fatalf is Fatal with inline formatting.
func Fatalf(component, format string, args ...interface{}) {
	Fatal(component, fmt.Errorf(format, args...))
}

// Aggregate collects zero or more errors into a single hashicorp
// multierror, so several independent failures can be reported together
// instead of only the first. No runtime package calls it; only its own
// tests do.
func Aggregate(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result == nil {
		return nil
	}
	return result.ErrorOrNil()
}

// debugChecks gates the invariant assertions mentioned in §9 ("assert
// driven invariants in release builds vanish"). It defaults to off;
// cmd/corertd's -debug-checks flag enables it via SetDebugChecks.
var debugChecks = false

// SetDebugChecks toggles invariant checking. cmd/corertd wires this to a
// -debug-checks flag; core packages never flip it themselves.
func SetDebugChecks(enabled bool) {
	debugChecks = enabled
}

// DebugChecksEnabled reports whether invariant checks should run.
func DebugChecksEnabled() bool {
	return debugChecks
}

// CheckInvariant is the concrete "debug-mode check" mechanism requested by
// the design: when debug checks are enabled and cond is false, it is a
// protocol violation and the process is terminated with the given tag and
// message; when disabled it is a no-op, matching release-build behavior.
func CheckInvariant(component string, cond bool, msg string) {
	if !debugChecks || cond {
		return
	}
	Fatalf(component, "invariant violated: %s", msg)
}
