package engine

import (
	"time"

	"github.com/phuquocloc/xcbd/internal/xatom"
	"github.com/phuquocloc/xcbd/internal/xconn"
)

// fakeConn is a recording stand-in for xconn.Conn, letting the Receiver
// and Provider state machines be driven and asserted against without an
// X server.
type fakeConn struct {
	win xconn.Window

	converts  []convertCall
	deletes   []xconn.Atom
	changes   []changeCall
	notifies  []notifyCall
	owner     xconn.Window
	ownerErr  error
	propReply *xconn.PropertyReply
	propErr   error
	selectErr error
}

type convertCall struct {
	selection, target, property xconn.Atom
}

type changeCall struct {
	win              xconn.Window
	property, target xconn.Atom
	kind             string // "atoms", "uint32", "bytes"
	atoms            []xconn.Atom
	u32              uint32
	bytes            []byte
}

type notifyCall struct {
	requestor                   xconn.Window
	selection, target, property xconn.Atom
}

func newFakeConn() *fakeConn { return &fakeConn{win: 1} }

func (f *fakeConn) Window() xconn.Window { return f.win }

func (f *fakeConn) ConvertSelection(selection, target, property xconn.Atom, _ xconn.Timestamp) {
	f.converts = append(f.converts, convertCall{selection, target, property})
}

func (f *fakeConn) GetProperty(_ bool, _ xconn.Window, _, _ xconn.Atom, _, _ uint32) (*xconn.PropertyReply, error) {
	if f.propErr != nil {
		return nil, f.propErr
	}
	if f.propReply != nil {
		return f.propReply, nil
	}
	return &xconn.PropertyReply{}, nil
}

func (f *fakeConn) DeleteProperty(_ xconn.Window, property xconn.Atom) {
	f.deletes = append(f.deletes, property)
}

func (f *fakeConn) ChangePropertyAtoms(win xconn.Window, property, target xconn.Atom, atoms []xconn.Atom) {
	f.changes = append(f.changes, changeCall{win: win, property: property, target: target, kind: "atoms", atoms: atoms})
}

func (f *fakeConn) ChangePropertyUint32(win xconn.Window, property, target xconn.Atom, v uint32) {
	f.changes = append(f.changes, changeCall{win: win, property: property, target: target, kind: "uint32", u32: v})
}

func (f *fakeConn) ChangePropertyBytes(win xconn.Window, property, target xconn.Atom, data []byte) {
	f.changes = append(f.changes, changeCall{win: win, property: property, target: target, kind: "bytes", bytes: data})
}

func (f *fakeConn) SendSelectionNotify(requestor xconn.Window, selection, target, property xconn.Atom, _ xconn.Timestamp) {
	f.notifies = append(f.notifies, notifyCall{requestor, selection, target, property})
}

func (f *fakeConn) SetSelectionOwner(_ xconn.Atom, _ xconn.Timestamp) {
	f.owner = f.win
}

func (f *fakeConn) GetSelectionOwner(_ xconn.Atom) (xconn.Window, error) {
	if f.ownerErr != nil {
		return xconn.NoWindow, f.ownerErr
	}
	return f.owner, nil
}

func (f *fakeConn) SelectPropertyChangeEvents(_ xconn.Window) error {
	return f.selectErr
}

// fakeStore is a minimal HistoryWriter recording what the Receiver
// finalized.
type fakeStore struct {
	pushed []string
}

func (s *fakeStore) PushIfExists(filename string) error {
	s.pushed = append(s.pushed, filename)
	return nil
}

func (s *fakeStore) NewFilename(_ time.Time, k xatom.Kind) string {
	return "fixed" + k.Extension()
}

// fakeClock lets tests advance time deterministically to exercise
// deadline-driven resets.
type fakeClock struct{ now int64 }

func (c *fakeClock) NowMillis() int64 { return c.now }

