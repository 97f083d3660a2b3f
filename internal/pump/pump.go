// Package pump implements the Event Pump: the single
// consumer of the X connection's event stream, dispatching each event to
// the Receiver or Provider sub-state of one engine.Engine it owns
// exclusively.
//
// Cross-thread pokes (an inject claim from internal/inject, a shutdown
// request from internal/shutdown) arrive as messages on channels rather
// than by another goroutine touching the engine directly: a small
// mailbox plus an event wake, not shared mutable state.
package pump

import (
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xfixes"
	"github.com/jezek/xgb/xproto"

	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
	"github.com/phuquocloc/xcbd/internal/engine"
	"github.com/phuquocloc/xcbd/internal/xatom"
	"github.com/phuquocloc/xcbd/internal/xconn"
)

const propertyReadWords = 1 << 18 // 1MiB worth of 32-bit words, a generous ceiling for a single property read

// tickInterval bounds how long a stuck transaction can outlive its
// deadline before OnTick notices.
const tickInterval = 500 * time.Millisecond

// ClaimRequest is the message the Inject Worker sends to have the
// Provider claim ownership of a new payload.
type ClaimRequest struct {
	Bytes []byte
	Kind  xatom.Kind
	Done  chan<- bool // optional: receives whether the claim was accepted
}

// Pump owns the engine and the X connection's event loop.
type Pump struct {
	conn   *xconn.Conn
	eng    *engine.Engine
	atoms  *xatom.Table

	events chan rawEvent
	claims chan ClaimRequest
	ready  chan struct{} // closed once atoms + listener window exist
	done   chan struct{}
}

type rawEvent struct {
	ev  xgb.Event
	err xgb.Error
}

// New builds a Pump. Ready() is not yet closed; call Run to start the
// reader goroutine and the dispatch loop, which closes Ready once setup
// completes.
func New(conn *xconn.Conn, eng *engine.Engine, atoms *xatom.Table) *Pump {
	return &Pump{
		conn:   conn,
		eng:    eng,
		atoms:  atoms,
		events: make(chan rawEvent, 16),
		claims: make(chan ClaimRequest, 4),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Ready is closed once the listener window and atom table exist; the
// Inject Worker blocks on it at startup.
func (p *Pump) Ready() <-chan struct{} { return p.ready }

// Claims returns the channel the Inject Worker posts ClaimRequests on.
func (p *Pump) Claims() chan<- ClaimRequest { return p.claims }

// Done is closed once Run returns.
func (p *Pump) Done() <-chan struct{} { return p.done }

// Run starts the dedicated blocking reader goroutine and the dispatch
// loop, and returns once the loop exits (on a fatal connection error or
// a shutdown wakeup). Ready is closed as soon as Run starts, since New
// is only called after the listener window and atom table are built.
func (p *Pump) Run() {
	defer close(p.done)
	close(p.ready)

	go p.readLoop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case raw, ok := <-p.events:
			if !ok {
				return
			}
			if raw.err != nil {
				nlog.Errorln("pump: X protocol error:", raw.err)
				continue
			}
			if p.dispatch(raw.ev) {
				return // wakeup client-message observed during shutdown
			}
		case req := <-p.claims:
			accepted := p.eng.ClaimOwnership(req.Bytes, req.Kind)
			if req.Done != nil {
				req.Done <- accepted
			}
		case t := <-ticker.C:
			p.eng.OnTick(t.UnixMilli())
		}
	}
}

func (p *Pump) readLoop() {
	defer close(p.events)
	for {
		ev, xerr, err := p.conn.WaitForEvent()
		if err != nil {
			return // connection closed/fatal "Fatal: display connection error"
		}
		p.events <- rawEvent{ev: ev, err: xerr}
	}
}

// Wakeup sends the synthetic client-message the Shutdown Coordinator
// uses to unblock a pending WaitForEvent call. The dispatch loop treats any ClientMessage of our wakeup
// atom as a signal to stop, since Run is only ever asked to stop at
// shutdown.
func (p *Pump) Wakeup() {
	p.conn.SendWakeupClientMessage(p.atoms.Wakeup)
}

// dispatch routes one X event to the engine. It returns true when the
// event is our own shutdown wakeup, telling Run to stop the loop.
func (p *Pump) dispatch(ev xgb.Event) bool {
	switch e := ev.(type) {
	case xfixes.SelectionNotifyEvent:
		if e.Selection != p.atoms.Clipboard || e.Owner == p.conn.Window() {
			return false
		}
		if nlog.FastV(2) {
			nlog.Infoln("pump: owner changed, new owner", e.Owner)
		}
		p.eng.OnOwnerChanged(e.Owner, e.Timestamp)

	case xproto.SelectionNotifyEvent:
		p.onSelectionNotify(e)

	case xproto.SelectionRequestEvent:
		p.eng.OnSelectionRequest(e.Requestor, e.Selection, e.Target, e.Property, e.Time)

	case xproto.PropertyNotifyEvent:
		p.onPropertyNotify(e)

	case xproto.ClientMessageEvent:
		if e.Type == p.atoms.Wakeup {
			return true
		}
		// else: ignored
	}
	return false
}

// onPropertyNotify routes a PropertyNotify to the Receiver (new value on
// our own window's transfer property, while INCR streaming inbound) or
// the Provider (the requestor deleting the property we're streaming
// outbound to).
func (p *Pump) onPropertyNotify(e xproto.PropertyNotifyEvent) {
	switch e.State {
	case xproto.PropertyNewValue:
		if e.Window == p.conn.Window() && e.Atom == p.atoms.Property {
			p.eng.OnPropertyNewValue()
		}
	case xproto.PropertyDelete:
		if requestor, property, ok := p.eng.Provider.Pending(); ok && e.Window == requestor && e.Atom == property {
			p.eng.OnPropertyDeleted(e.Window, e.Atom)
		}
	}
}

// onSelectionNotify fetches the property a convert-selection reply
// filled in and routes it to the Receiver's TARGETS-negotiation or
// data-reply handler depending on the Receiver's current state.
func (p *Pump) onSelectionNotify(e xproto.SelectionNotifyEvent) {
	if e.Property == xconn.AtomNone {
		if p.eng.Receiver.State() == engine.AwaitingTargets {
			p.eng.OnTargetsReply(0, nil, true)
		} else {
			p.eng.OnDataReply(e.Target, &xconn.PropertyReply{}, true)
		}
		return
	}

	reply, err := p.conn.GetProperty(true, p.conn.Window(), e.Property, 0 /*AnyPropertyType*/, 0, propertyReadWords)
	if err != nil {
		nlog.Warningln("pump: GetProperty after SelectionNotify failed:", err)
		return
	}

	if e.Target == p.atoms.Targets {
		p.eng.OnTargetsReply(reply.Type, reply.Value, false)
		return
	}
	p.eng.OnDataReply(e.Target, reply, false)
}
