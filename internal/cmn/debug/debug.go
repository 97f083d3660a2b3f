// Package debug provides cheap invariant checks
// that are compiled into debug builds and no-ops otherwise, driven by the
// "debug" build tag. See debug_on.go / debug_off.go.
package debug

// Assert panics with msg if cond is false. Reserved for invariants that
// indicate a programming bug in this daemon (e.g. a ring index out of
// range), never for conditions an X peer can trigger.
func Assert(cond bool, msg string) {
	assert(cond, msg)
}

// AssertNoErr panics if err is non-nil. Used for "this really cannot
// fail" paths, where the only sane response to an error is a programming
// bug report.
func AssertNoErr(err error) {
	assertNoErr(err)
}
