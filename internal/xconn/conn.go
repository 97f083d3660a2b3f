// Package xconn is the daemon's only dependency on the X11 wire protocol.
// Everything else in this module speaks in terms of Atom/Window/Timestamp
// and the small set of requests ICCCM selection transfers need; xconn is
// where those get turned into github.com/jezek/xgb + xgb/xproto +
// xgb/xfixes calls.
//
// The X connection and atom-interning primitives are treated as an
// external collaborator, built on the pure-Go ICCCM/XFixes protocol
// library the wider Go X11 ecosystem uses (see DESIGN.md for why
// jezek/xgb was picked over a cgo binding).
package xconn

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xfixes"
	"github.com/jezek/xgb/xproto"

	"github.com/phuquocloc/xcbd/internal/cmn"
)

type (
	Atom      = xproto.Atom
	Window    = xproto.Window
	Timestamp = xproto.Timestamp
)

const (
	AtomNone Atom   = 0
	NoWindow Window = 0
)

// Conn wraps a single connection to the X display server plus the one
// listener window this daemon creates on it.
type Conn struct {
	x      *xgb.Conn
	screen *xproto.ScreenInfo
	window Window

	xfixesEventBase uint8
}

// Open connects to the display named by name, verifies XFixes
// is present, and returns a
// Conn with no listener window yet (see CreateListenerWindow).
func Open(name string) (*Conn, error) {
	x, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, cmn.Wrapf(err, "xconn: cannot open display %q", name)
	}
	if err := xfixes.Init(x); err != nil {
		x.Close()
		return nil, cmn.Wrapf(err, "xconn: XFixes extension unavailable")
	}
	reply, err := xfixes.QueryVersion(x, xfixes.MajorVersion, xfixes.MinorVersion).Reply()
	if err != nil || reply == nil {
		x.Close()
		return nil, cmn.Wrapf(err, "xconn: XFixes QueryVersion failed")
	}
	setup := xproto.Setup(x)
	screen := setup.DefaultScreen(x)
	return &Conn{
		x:               x,
		screen:          screen,
		xfixesEventBase: x.Extensions["XFIXES"],
	}, nil
}

// Close tears down the connection. The caller is responsible for
// destroying the listener window first if a clean disconnect matters.
func (c *Conn) Close() { c.x.Close() }

// Root returns the default screen's root window, the parent for the
// listener window.
func (c *Conn) Root() Window { return c.screen.Root }

// InternAtom interns name, creating it on the server if it doesn't exist
// yet (onlyIfExists=false), always interning rather than only-if-exists lookups.
func (c *Conn) InternAtom(name string) (Atom, error) {
	reply, err := xproto.InternAtom(c.x, false, uint16(len(name)), name).Reply()
	if err != nil {
		return AtomNone, cmn.Wrapf(err, "xconn: InternAtom(%s)", name)
	}
	return reply.Atom, nil
}

// CreateListenerWindow creates a 1x1 unmapped (invisible) window used as
// both the selection requestor and the selection provider window, and
// subscribes it to XFixes selection-owner-change notifications for
// CLIPBOARD. Returns the window id.
func (c *Conn) CreateListenerWindow(clipboard Atom) (Window, error) {
	wid, err := xproto.NewWindowId(c.x)
	if err != nil {
		return NoWindow, cmn.Wrapf(err, "xconn: allocating window id")
	}
	const depthCopyFromParent = 0 // X11 CopyFromParent, valid for both depth and visual
	err = xproto.CreateWindowChecked(
		c.x, depthCopyFromParent, wid, c.screen.Root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOutput, c.screen.RootVisual,
		0, nil,
	).Check()
	if err != nil {
		return NoWindow, cmn.Wrapf(err, "xconn: CreateWindow")
	}
	c.window = wid

	const mask = xfixes.SelectionEventMaskSetSelectionOwner |
		xfixes.SelectionEventMaskSelectionWindowDestroy |
		xfixes.SelectionEventMaskSelectionClientClose
	if err := xfixes.SelectSelectionInputChecked(c.x, wid, clipboard, mask).Check(); err != nil {
		return NoWindow, cmn.Wrapf(err, "xconn: SelectSelectionInput")
	}
	// Property-change events on our own window, needed to observe INCR
	// fragments a peer writes while streaming a receive transaction to us.
	if err := xproto.ChangeWindowAttributesChecked(c.x, wid, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange}).Check(); err != nil {
		return NoWindow, cmn.Wrapf(err, "xconn: ChangeWindowAttributes")
	}
	return wid, nil
}

// Window returns the listener window created by CreateListenerWindow.
func (c *Conn) Window() Window { return c.window }

// XFixesSelectionNotifyEventCode returns the dynamic event-code XFixes
// registered its SelectionNotify event under. The Event Pump's dispatch
// switch matches on the decoded event type instead and does not call it.
func (c *Conn) XFixesSelectionNotifyEventCode() int {
	return int(c.xfixesEventBase) + xfixes.SelectionNotify
}

// WaitForEvent blocks until the next event arrives on the connection.
// This is the daemon's single blocking suspension point for the Event
// Pump thread; it never polls.
func (c *Conn) WaitForEvent() (xgb.Event, xgb.Error, error) {
	ev, xerr := c.x.WaitForEvent()
	if ev == nil && xerr == nil {
		return nil, nil, fmt.Errorf("xconn: connection closed")
	}
	return ev, xerr, nil
}

// ConvertSelection asks the current owner of selection to convert it to
// target, delivering the reply into property on our listener window.
func (c *Conn) ConvertSelection(selection, target, property Atom, t Timestamp) {
	xproto.ConvertSelection(c.x, c.window, selection, target, property, t)
}

// PropertyReply is the subset of xproto.GetPropertyReply the state
// machines need, kept as our own type so callers outside this package
// never import jezek/xgb directly.
type PropertyReply struct {
	Type        Atom
	Format      byte
	ValueLen    uint32
	BytesAfter  uint32 // bytes_remaining_on_server
	Value       []byte
}

// GetProperty reads (and optionally deletes) a property on win, starting
// at the given 32-bit word offset, for up to length 32-bit words. This
// backs both fetch_property (Receiver) and the drain loop.
func (c *Conn) GetProperty(del bool, win Window, property, propType Atom, offset, length uint32) (*PropertyReply, error) {
	reply, err := xproto.GetProperty(c.x, del, win, property, propType, offset, length).Reply()
	if err != nil {
		return nil, cmn.Wrapf(err, "xconn: GetProperty")
	}
	return &PropertyReply{
		Type:       reply.Type,
		Format:     reply.Format,
		ValueLen:   reply.ValueLen,
		BytesAfter: reply.BytesAfter,
		Value:      reply.Value,
	}, nil
}

// DeleteProperty deletes a property outright, used defensively before
// starting a new convert-selection round and as the INCR "ready for next
// chunk" signal.
func (c *Conn) DeleteProperty(win Window, property Atom) {
	xproto.DeleteProperty(c.x, win, property)
}

// ChangePropertyAtoms writes a list of 32-bit atoms to a property, used
// for TARGETS replies.
func (c *Conn) ChangePropertyAtoms(win Window, property, propType Atom, atoms []Atom) {
	data := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		xgb.Put32(data[i*4:], uint32(a))
	}
	xproto.ChangeProperty(c.x, xproto.PropModeReplace, win, property, propType, 32, uint32(len(atoms)), data)
}

// ChangePropertyUint32 writes a single 32-bit value, used for the
// TIMESTAMP reply and the INCR total-size sentinel.
func (c *Conn) ChangePropertyUint32(win Window, property, propType Atom, v uint32) {
	data := make([]byte, 4)
	xgb.Put32(data, v)
	xproto.ChangeProperty(c.x, xproto.PropModeReplace, win, property, propType, 32, 1, data)
}

// ChangePropertyBytes writes raw 8-bit data, used for single-shot
// replies and INCR chunk pumping.
func (c *Conn) ChangePropertyBytes(win Window, property, propType Atom, data []byte) {
	xproto.ChangeProperty(c.x, xproto.PropModeReplace, win, property, propType, 8, uint32(len(data)), data)
}

// SendSelectionNotify sends a SelectionNotify event to requestor,
// synthesizing the reply to a SelectionRequest.
func (c *Conn) SendSelectionNotify(requestor Window, selection, target, property Atom, t Timestamp) {
	ev := xproto.SelectionNotifyEvent{
		Time:      t,
		Requestor: requestor,
		Selection: selection,
		Target:    target,
		Property:  property,
	}
	xproto.SendEvent(c.x, false, requestor, xproto.EventMaskNoEvent, string(ev.Bytes()))
}

// SendWakeupClientMessage sends a synthetic ClientMessage to our own
// listener window, unblocking a pending WaitForEvent call. This is the
// Shutdown Coordinator's wake mechanism.
func (c *Conn) SendWakeupClientMessage(wakeupAtom Atom) {
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: c.window,
		Type:   wakeupAtom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{0, 0, 0, 0, 0}),
	}
	xproto.SendEvent(c.x, false, c.window, xproto.EventMaskNoEvent, string(ev.Bytes()))
}

// SelectPropertyChangeEvents subscribes to PropertyNotify events on win,
// used by the Provider to observe a requestor deleting an INCR property.
func (c *Conn) SelectPropertyChangeEvents(win Window) error {
	err := xproto.ChangeWindowAttributesChecked(c.x, win, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		return cmn.Wrapf(err, "xconn: subscribing to property events on %v", win)
	}
	return nil
}

// SetSelectionOwner claims ownership of selection on our listener window.
func (c *Conn) SetSelectionOwner(selection Atom, t Timestamp) {
	xproto.SetSelectionOwner(c.x, c.window, selection, t)
}

// GetSelectionOwner returns the current owner of selection, used by the
// verify-after-claim step and the
// Single-Instance Guard.
func (c *Conn) GetSelectionOwner(selection Atom) (Window, error) {
	reply, err := xproto.GetSelectionOwner(c.x, selection).Reply()
	if err != nil {
		return NoWindow, cmn.Wrapf(err, "xconn: GetSelectionOwner")
	}
	return reply.Owner, nil
}
