// Package guard implements the Single-Instance Guard: a
// startup check that refuses to run a second daemon against the same
// display by using a private, never-advertised selection atom as a
// lock.
package guard

import (
	"github.com/phuquocloc/xcbd/internal/cmn"
	"github.com/phuquocloc/xcbd/internal/xconn"
)

// Owner is the slice of xconn.Conn the guard needs.
type Owner interface {
	GetSelectionOwner(selection xconn.Atom) (xconn.Window, error)
	SetSelectionOwner(selection xconn.Atom, t xconn.Timestamp)
	Window() xconn.Window
}

// Claim checks lockAtom's current owner and, if unowned, claims it on
// our own listener window. It returns cmn.ErrAnotherInstance if a
// different window already owns it.
func Claim(conn Owner, lockAtom xconn.Atom) error {
	owner, err := conn.GetSelectionOwner(lockAtom)
	if err != nil {
		return cmn.Wrapf(err, "guard: querying lock atom owner")
	}
	if owner != xconn.NoWindow {
		return cmn.ErrAnotherInstance
	}
	conn.SetSelectionOwner(lockAtom, 0 /*CurrentTime*/)

	// Verify-after-claim: a racing second instance could have claimed the
	// atom between our query and our claim.
	owner, err = conn.GetSelectionOwner(lockAtom)
	if err != nil {
		return cmn.Wrapf(err, "guard: verifying lock atom claim")
	}
	if owner != conn.Window() {
		return cmn.ErrAnotherInstance
	}
	return nil
}
