package engine

import (
	"github.com/phuquocloc/xcbd/internal/cmn/debug"
	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
	"github.com/phuquocloc/xcbd/internal/xatom"
	"github.com/phuquocloc/xcbd/internal/xconn"
)

// Provider owns at most one in-flight outgoing INCR transfer at a time.
type Provider struct {
	locked     bool
	deadlineAt int64

	requestor  xconn.Window
	property   xconn.Atom
	kind       xatom.Kind
	payload    []byte
	offset     int
}

func (p *Provider) Locked() bool { return p.locked }

// Pending reports the (requestor, property) pair of the in-flight INCR,
// if any. The Event Pump uses this to recognize PropertyDelete events on
// a requestor window, which it subscribed to when the INCR started.
func (p *Provider) Pending() (requestor xconn.Window, property xconn.Atom, ok bool) {
	return p.requestor, p.property, p.locked
}

// ClaimOwnership makes us the CLIPBOARD owner for bytes of the given
// kind. It is invoked by the Inject Worker goroutine but modeled as a
// message the Event Pump processes on its own goroutine rather than a
// direct concurrent mutation — see internal/pump for the channel that
// carries it here.
//
// Two independent guards apply:
//  1. a live (non-timed-out) Receiver transaction discards the claim
//     outright;
//  2. a live (non-timed-out) Provider INCR, to any requestor, also
//     discards the claim; an expired one is abandoned and overwritten.
func (e *Engine) ClaimOwnership(bytes []byte, kind xatom.Kind) bool {
	now := e.Clock.NowMillis()
	if e.Receiver.locked && now < e.Receiver.deadlineAt {
		nlog.Infoln("engine: ClaimOwnership discarded, receive transaction in flight")
		return false
	}
	if e.Provider.locked && now < e.Provider.deadlineAt {
		nlog.Infoln("engine: ClaimOwnership discarded, provider INCR in flight")
		return false
	}
	e.resetProvider()

	e.Active.Bytes = bytes
	e.Active.Kind = kind
	e.Conn.SetSelectionOwner(e.Atoms.Clipboard, 0 /*CurrentTime*/)

	// Verify-after-claim: confirm the claim stuck, but a mismatch here is
	// logged, not fatal — a racing peer may reclaim the selection a
	// moment later and that's expected, not an error in this daemon.
	if owner, err := e.Conn.GetSelectionOwner(e.Atoms.Clipboard); err == nil && owner != e.Conn.Window() {
		nlog.Warningln("engine: selection ownership claim did not stick, owner is", owner)
	}
	return true
}

func (e *Engine) resetProvider() {
	p := &e.Provider
	p.locked = false
	p.requestor = xconn.NoWindow
	p.property = xconn.AtomNone
	p.payload = nil
	p.offset = 0
}

// OnSelectionRequest answers a peer's SelectionRequest.
func (e *Engine) OnSelectionRequest(requestor xconn.Window, selection, target, property xconn.Atom, t xconn.Timestamp) {
	replyProperty := property
	if replyProperty == xconn.AtomNone {
		// Pre-ICCCM requestor: per ICCCM, fall back to the target itself.
		replyProperty = target
	}

	accept := e.handleTarget(requestor, target, replyProperty, t)
	outProperty := xconn.AtomNone
	if accept {
		outProperty = replyProperty
	}
	e.Conn.SendSelectionNotify(requestor, selection, target, outProperty, t)
}

func (e *Engine) handleTarget(requestor xconn.Window, target, property xconn.Atom, t xconn.Timestamp) bool {
	switch {
	case target == e.Atoms.Targets:
		e.Conn.ChangePropertyAtoms(requestor, property, e.Atoms.Targets,
			[]xconn.Atom{e.Atoms.Targets, e.Atoms.Timestamp, e.Atoms.FormatFor(e.Active.Kind)})
		return true

	case target == e.Atoms.Timestamp:
		e.Conn.ChangePropertyUint32(requestor, property, e.Atoms.Timestamp, uint32(t))
		return true

	case target == e.Atoms.FormatFor(e.Active.Kind) && len(e.Active.Bytes) > 0:
		return e.serveData(requestor, property, target)

	default:
		return false
	}
}

func (e *Engine) serveData(requestor xconn.Window, property, target xconn.Atom) bool {
	payload := e.Active.Bytes
	if len(payload) <= e.IncrChunkSize {
		e.Conn.ChangePropertyBytes(requestor, property, target, payload)
		return true
	}

	now := e.Clock.NowMillis()
	if e.Provider.locked && now < e.Provider.deadlineAt && e.Provider.requestor != requestor {
		nlog.Infoln("engine: rejecting SelectionRequest, another INCR already in flight")
		return false
	}
	if e.Provider.locked && now >= e.Provider.deadlineAt {
		nlog.Warningln("engine: abandoning stuck provider INCR to serve a new request")
	}

	p := &e.Provider
	p.requestor = requestor
	p.property = property
	p.kind = e.Active.Kind
	p.payload = payload
	p.offset = 0
	p.locked = true
	p.deadlineAt = now + e.DeadlineMillis

	if err := e.Conn.SelectPropertyChangeEvents(requestor); err != nil {
		nlog.Warningln("engine: failed to subscribe to requestor property events:", err)
	}
	e.Conn.ChangePropertyUint32(requestor, property, e.Atoms.Incr, uint32(len(payload)))
	return true
}

// OnPropertyDeleted pumps the next INCR chunk once the peer has
// consumed the previous one.
func (e *Engine) OnPropertyDeleted(requestor xconn.Window, property xconn.Atom) {
	p := &e.Provider
	if !p.locked || requestor != p.requestor || property != p.property {
		return
	}
	p.deadlineAt = e.Clock.NowMillis() + e.DeadlineMillis

	debug.Assert(p.offset >= 0 && p.offset <= len(p.payload), "provider: offset out of payload bounds")
	remaining := len(p.payload) - p.offset
	if remaining == 0 {
		e.Conn.ChangePropertyBytes(requestor, property, e.Atoms.FormatFor(p.kind), nil) // zero-length EOF
		e.resetProvider()
		return
	}

	n := remaining
	if n > e.IncrChunkSize {
		n = e.IncrChunkSize
	}
	chunk := p.payload[p.offset : p.offset+n]
	e.Conn.ChangePropertyBytes(requestor, property, e.Atoms.FormatFor(p.kind), chunk)
	p.offset += n
	debug.Assert(p.offset <= len(p.payload), "provider: offset advanced past payload end")
}

func (e *Engine) onProviderTick(nowMillis int64) {
	p := &e.Provider
	if p.locked && nowMillis >= p.deadlineAt {
		e.logTimeout("provider")
		e.resetProvider()
	}
}
