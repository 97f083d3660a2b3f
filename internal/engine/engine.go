// Package engine is the selection-transfer protocol engine: the
// Receiver and Provider state machines, modeled as
// pure transition functions over (state, event) -> (state', emitted
// requests). The Event Pump is the only
// caller; it owns this package's types exclusively and is the only
// goroutine that mutates them, so none of it needs its own locking.
package engine

import (
	"time"

	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
	"github.com/phuquocloc/xcbd/internal/xatom"
	"github.com/phuquocloc/xcbd/internal/xconn"
)

// XConn is the slice of xconn.Conn the state machines need to drive a
// transfer. A narrow interface (rather than *xconn.Conn directly) keeps
// Receiver/Provider unit-testable against a fake, matching the Design
// Notes' call to make the state machine "testable in isolation".
type XConn interface {
	Window() xconn.Window
	ConvertSelection(selection, target, property xconn.Atom, t xconn.Timestamp)
	GetProperty(del bool, win xconn.Window, property, propType xconn.Atom, offset, length uint32) (*xconn.PropertyReply, error)
	DeleteProperty(win xconn.Window, property xconn.Atom)
	ChangePropertyAtoms(win xconn.Window, property, propType xconn.Atom, atoms []xconn.Atom)
	ChangePropertyUint32(win xconn.Window, property, propType xconn.Atom, v uint32)
	ChangePropertyBytes(win xconn.Window, property, propType xconn.Atom, data []byte)
	SendSelectionNotify(requestor xconn.Window, selection, target, property xconn.Atom, t xconn.Timestamp)
	SetSelectionOwner(selection xconn.Atom, t xconn.Timestamp)
	GetSelectionOwner(selection xconn.Atom) (xconn.Window, error)
	SelectPropertyChangeEvents(win xconn.Window) error
}

// HistoryWriter is the slice of store.Store the Receiver needs, kept
// narrow for the same testability reason.
type HistoryWriter interface {
	PushIfExists(filename string) error
	NewFilename(t time.Time, k xatom.Kind) string
}

// ActivePayload is the bytes currently advertised as "our" clipboard
// contents. Exactly one is held; ClaimOwnership overwrites it, and the
// previous allocation is freed by becoming garbage.
type ActivePayload struct {
	Bytes []byte
	Kind  xatom.Kind
}

// Clock lets tests supply a fake deadline-driver; production code uses
// wallClock.
type Clock interface {
	NowMillis() int64
}

type wallClock struct{}

func (wallClock) NowMillis() int64 { return time.Now().UnixMilli() }

// Engine bundles the Receiver and Provider sub-states on one value owned
// by the Event Pump goroutine.
type Engine struct {
	Conn   XConn
	Atoms  *xatom.Table
	Store  HistoryWriter
	Clock  Clock
	Active *ActivePayload

	Receiver Receiver
	Provider Provider

	DeadlineMillis int64
	IncrChunkSize  int
}

// New builds an Engine with the given transaction deadline and INCR
// chunk size.
func New(conn XConn, atoms *xatom.Table, st HistoryWriter, deadline time.Duration, incrChunkSize int) *Engine {
	return &Engine{
		Conn:           conn,
		Atoms:          atoms,
		Store:          st,
		Clock:          wallClock{},
		Active:         &ActivePayload{},
		DeadlineMillis: deadline.Milliseconds(),
		IncrChunkSize:  incrChunkSize,
	}
}

func (e *Engine) logTimeout(what string) {
	nlog.Warningln("engine:", what, "transaction timed out and was unilaterally reset")
}
