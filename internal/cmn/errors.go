// Package cmn holds small cross-cutting pieces shared by every internal
// package: the error taxonomy and a couple of helpers that
// don't deserve their own package.
package cmn

import "github.com/pkg/errors"

// Sentinel errors for the error taxonomy. Transient peer errors and
// protocol-invariant violations are both modeled as plain errors the
// state machines compare against with errors.Is; callers log and reset
// the relevant transaction rather than propagating these further.
var (
	// ErrTargetRejected: a SelectionNotify/SelectionRequest peer answered
	// with property == None.
	ErrTargetRejected = errors.New("target rejected by peer")

	// ErrNoMatchingTarget: a TARGETS reply contained no atom this daemon
	// understands.
	ErrNoMatchingTarget = errors.New("no matching target in TARGETS reply")

	// ErrTransferTimeout: a receive or provide transaction exceeded its
	// deadline and was unilaterally reset.
	ErrTransferTimeout = errors.New("transfer deadline exceeded")

	// ErrIncrProtocol: the peer violated the INCR sub-protocol (e.g. a
	// negative remaining count, or an unexpected property type).
	ErrIncrProtocol = errors.New("incr protocol violation")

	// ErrBusy: a transaction was requested while another of the same
	// kind (receive or provide) is already in flight and not timed out.
	ErrBusy = errors.New("transaction already in flight")

	// ErrEmpty: an operation that requires at least one history item was
	// invoked against an empty store.
	ErrEmpty = errors.New("history store is empty")

	// ErrOutOfRange: a logical index fell outside [0, size).
	ErrOutOfRange = errors.New("logical index out of range")

	// ErrTooLarge: a payload exceeded a hard size ceiling (the inject
	// budget or a read_binary max_len).
	ErrTooLarge = errors.New("payload exceeds size limit")

	// ErrAnotherInstance: the single-instance lock selection is already
	// owned by a different window.
	ErrAnotherInstance = errors.New("another instance is already running")
)

// Wrapf is a thin re-export of pkg/errors.Wrapf so call sites only import
// this package, funneling error wrapping
// through one place (cmn) rather than importing pkg/errors everywhere.
func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}
