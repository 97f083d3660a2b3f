package guard

import (
	"testing"

	"github.com/phuquocloc/xcbd/internal/cmn"
	"github.com/phuquocloc/xcbd/internal/xconn"
)

type fakeOwner struct {
	win   xconn.Window
	owner xconn.Window
}

func (f *fakeOwner) GetSelectionOwner(_ xconn.Atom) (xconn.Window, error) { return f.owner, nil }
func (f *fakeOwner) SetSelectionOwner(_ xconn.Atom, _ xconn.Timestamp)    { f.owner = f.win }
func (f *fakeOwner) Window() xconn.Window                                { return f.win }

func TestClaimSucceedsWhenUnowned(t *testing.T) {
	o := &fakeOwner{win: 7, owner: xconn.NoWindow}
	if err := Claim(o, 42); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if o.owner != o.win {
		t.Errorf("owner = %v, want our window %v", o.owner, o.win)
	}
}

func TestClaimFailsWhenAlreadyOwned(t *testing.T) {
	o := &fakeOwner{win: 7, owner: 99}
	if err := Claim(o, 42); err != cmn.ErrAnotherInstance {
		t.Fatalf("Claim = %v, want ErrAnotherInstance", err)
	}
}
