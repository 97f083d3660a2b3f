package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/phuquocloc/xcbd/internal/cmn/debug"
	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
	"github.com/phuquocloc/xcbd/internal/xatom"
	"github.com/phuquocloc/xcbd/internal/xconn"
	"github.com/phuquocloc/xcbd/internal/xfer"
)

// ReceiverState is the Receiver's state tag.
type ReceiverState int

const (
	Idle ReceiverState = iota
	AwaitingTargets
	AwaitingData
	IncrStreaming
)

func (s ReceiverState) String() string {
	switch s {
	case AwaitingTargets:
		return "AwaitingTargets"
	case AwaitingData:
		return "AwaitingData"
	case IncrStreaming:
		return "IncrStreaming"
	default:
		return "Idle"
	}
}

// Receiver owns at most one in-flight incoming transfer at a time. All
// inputs arrive from the Event Pump and run on its goroutine; Receiver
// has no internal locking of its own, only the transaction's own
// "locked" flag.
type Receiver struct {
	dbDir string
	buf   *xfer.Buffer

	locked          bool
	state           ReceiverState
	transactionTime xconn.Timestamp
	deadlineAt      int64
	outputFilename  string
	file            *os.File
	bytesTotal      int64
	incrTargetKind  xatom.Kind
}

// InitReceiver wires the Receiver's scratch buffer and output directory.
// Called once at startup.
func (e *Engine) InitReceiver(dbDir string, buf *xfer.Buffer) {
	e.Receiver.dbDir = dbDir
	e.Receiver.buf = buf
}

// State reports the current state, for tests and logging.
func (r *Receiver) State() ReceiverState { return r.state }
func (r *Receiver) Locked() bool         { return r.locked }

func (e *Engine) heartbeat() {
	e.Receiver.deadlineAt = e.Clock.NowMillis() + e.DeadlineMillis
}

// acquireReceiver reports whether the caller may take the transaction
// lock, force-resetting the previous holder first if its deadline has
// elapsed. The caller sets the lock itself.
func (e *Engine) acquireReceiver(now int64) bool {
	r := &e.Receiver
	if !r.locked {
		return true
	}
	if now >= r.deadlineAt {
		e.logTimeout("receiver")
		e.resetReceiver()
		return true
	}
	return false
}

func (e *Engine) resetReceiver() {
	r := &e.Receiver
	r.buf.Abort()
	if r.file != nil {
		r.file.Close()
		if r.outputFilename != "" {
			os.Remove(filepath.Join(r.dbDir, r.outputFilename))
		}
	}
	r.locked = false
	r.state = Idle
	r.file = nil
	r.outputFilename = ""
	r.bytesTotal = 0
}

// OnOwnerChanged handles an XFixes selection-notify reporting a new
// CLIPBOARD owner.
func (e *Engine) OnOwnerChanged(newOwner xconn.Window, serverTime xconn.Timestamp) {
	r := &e.Receiver
	now := e.Clock.NowMillis()
	if !e.acquireReceiver(now) {
		return // discarded: a transaction is in flight and not yet timed out
	}
	r.locked = true
	r.state = AwaitingTargets
	r.transactionTime = serverTime
	e.heartbeat()

	e.Conn.DeleteProperty(e.Conn.Window(), e.Atoms.Property) // defensive
	e.Conn.ConvertSelection(e.Atoms.Clipboard, e.Atoms.Targets, e.Atoms.Property, serverTime)
}

// OnTargetsReply handles the SelectionNotify carrying the peer's TARGETS
// answer.
func (e *Engine) OnTargetsReply(propertyType xconn.Atom, payload []byte, propertyWasNone bool) {
	r := &e.Receiver
	if !r.locked || r.state != AwaitingTargets {
		return
	}
	if propertyWasNone {
		nlog.Infoln("engine: receiver TARGETS request rejected by peer")
		e.resetReceiver()
		return
	}

	offered := xatom.ParseAtoms32(payload)
	best, ok := e.Atoms.PickBest(offered)
	if !ok {
		nlog.Infoln("engine: receiver TARGETS reply had no known media; releasing lock")
		e.resetReceiver()
		return
	}

	r.state = AwaitingData
	e.heartbeat()
	e.Conn.DeleteProperty(e.Conn.Window(), e.Atoms.Property)
	e.Conn.ConvertSelection(e.Atoms.Clipboard, best, e.Atoms.Property, r.transactionTime)
}

// OnDataReply handles the SelectionNotify carrying the actual payload
// conversion reply, either starting an INCR stream or handling the
// single-shot + drain path.
func (e *Engine) OnDataReply(target xconn.Atom, reply *xconn.PropertyReply, propertyWasNone bool) {
	r := &e.Receiver
	if !r.locked || r.state != AwaitingData {
		return
	}
	if propertyWasNone {
		nlog.Infoln("engine: receiver target request rejected by peer")
		e.resetReceiver()
		return
	}

	kind, known := e.Atoms.KindFor(target)
	if !known {
		nlog.Warningln("engine: receiver got a reply for an unrecognized target; releasing lock")
		e.resetReceiver()
		return
	}

	if reply.Type == e.Atoms.Incr {
		e.startIncr(kind)
		return
	}
	e.finishSingleShot(kind, reply)
}

func (e *Engine) startIncr(kind xatom.Kind) {
	r := &e.Receiver
	filename := e.Store.NewFilename(time.Now(), kind)
	f, err := os.Create(filepath.Join(r.dbDir, filename))
	if err != nil {
		nlog.Errorln("engine: receiver cannot open output file:", err)
		e.resetReceiver()
		return
	}
	r.file = f
	r.outputFilename = filename
	r.incrTargetKind = kind
	r.bytesTotal = 0
	r.buf.Begin(f)
	r.state = IncrStreaming
	e.heartbeat()
	// Acknowledge readiness for the first chunk.
	e.Conn.DeleteProperty(e.Conn.Window(), e.Atoms.Property)
}

func (e *Engine) finishSingleShot(kind xatom.Kind, first *xconn.PropertyReply) {
	r := &e.Receiver
	filename := e.Store.NewFilename(time.Now(), kind)
	f, err := os.Create(filepath.Join(r.dbDir, filename))
	if err != nil {
		nlog.Errorln("engine: receiver cannot open output file:", err)
		e.resetReceiver()
		return
	}
	r.file = f
	r.outputFilename = filename
	r.buf.Begin(f)

	if err := r.buf.Append(first.Value); err != nil {
		nlog.Errorln("engine: receiver buffer append failed:", err)
		e.resetReceiver()
		return
	}
	r.bytesTotal = int64(len(first.Value))

	// Drain rule: keep fetching at an advancing offset while
	// the server still reports residue, deleting only once drained.
	offset := uint32(len(first.Value)) / 4
	bytesAfter := first.BytesAfter
	for bytesAfter > 0 {
		reply, err := e.Conn.GetProperty(false, e.Conn.Window(), e.Atoms.Property, 0 /*AnyPropertyType*/, offset, 1<<18)
		if err != nil {
			nlog.Warningln("engine: receiver drain read failed:", err)
			e.resetReceiver()
			return
		}
		if err := r.buf.Append(reply.Value); err != nil {
			nlog.Errorln("engine: receiver buffer append failed during drain:", err)
			e.resetReceiver()
			return
		}
		r.bytesTotal += int64(len(reply.Value))
		offset += uint32(len(reply.Value)) / 4
		bytesAfter = reply.BytesAfter
		debug.Assert(r.bytesTotal >= 0, "receiver: bytesTotal went negative during drain")
	}
	e.Conn.DeleteProperty(e.Conn.Window(), e.Atoms.Property)
	e.finalizeReceive()
}

// OnPropertyNewValue handles a property-notify on our window while an
// INCR stream is active.
func (e *Engine) OnPropertyNewValue() {
	r := &e.Receiver
	if !r.locked || r.state != IncrStreaming {
		return
	}
	e.heartbeat()

	reply, err := e.Conn.GetProperty(true /*delete*/, e.Conn.Window(), e.Atoms.Property, 0, 0, 1<<18)
	if err != nil {
		nlog.Warningln("engine: receiver INCR read failed:", err)
		e.resetReceiver()
		return
	}
	if len(reply.Value) == 0 {
		e.finalizeReceive()
		return
	}

	if err := r.buf.Append(reply.Value); err != nil {
		nlog.Errorln("engine: receiver buffer append failed during INCR:", err)
		e.resetReceiver()
		return
	}
	r.bytesTotal += int64(len(reply.Value))
	debug.Assert(r.bytesTotal > 0, "receiver: bytesTotal not advanced after a non-empty INCR chunk")

	// Drain any residue at the current offset before asking for the
	// next chunk, exactly like the single-shot path.
	offset := uint32(len(reply.Value)) / 4
	bytesAfter := reply.BytesAfter
	for bytesAfter > 0 {
		more, err := e.Conn.GetProperty(false, e.Conn.Window(), e.Atoms.Property, 0, offset, 1<<18)
		if err != nil {
			nlog.Warningln("engine: receiver INCR drain failed:", err)
			e.resetReceiver()
			return
		}
		if err := r.buf.Append(more.Value); err != nil {
			nlog.Errorln("engine: receiver buffer append failed during INCR drain:", err)
			e.resetReceiver()
			return
		}
		r.bytesTotal += int64(len(more.Value))
		offset += uint32(len(more.Value)) / 4
		bytesAfter = more.BytesAfter
	}
	e.Conn.DeleteProperty(e.Conn.Window(), e.Atoms.Property)
}

func (e *Engine) finalizeReceive() {
	r := &e.Receiver
	if err := r.buf.Finalize(); err != nil {
		nlog.Errorln("engine: receiver finalize failed:", err)
		e.resetReceiver()
		return
	}
	r.file = nil
	if r.bytesTotal > 0 {
		if err := e.Store.PushIfExists(r.outputFilename); err != nil {
			nlog.Errorln("engine: receiver failed to register finished transfer:", err)
		}
	}
	r.locked = false
	r.state = Idle
	r.outputFilename = ""
	r.bytesTotal = 0
}

// OnTick checks the receiver's deadline, forcibly abandoning a stuck
// transfer without registering anything.
func (e *Engine) OnTick(nowMillis int64) {
	r := &e.Receiver
	if r.locked && nowMillis >= r.deadlineAt {
		e.logTimeout("receiver")
		e.resetReceiver()
	}
	e.onProviderTick(nowMillis)
}
