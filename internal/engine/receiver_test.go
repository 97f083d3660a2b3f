package engine

import (
	"testing"
	"time"

	"github.com/phuquocloc/xcbd/internal/xatom"
	"github.com/phuquocloc/xcbd/internal/xconn"
	"github.com/phuquocloc/xcbd/internal/xfer"
)

// fakeInterner assigns each distinct atom name a stable, increasing id,
// letting tests build a real xatom.Table without an X connection.
type fakeInterner struct {
	next int
	ids  map[string]xconn.Atom
}

func (f *fakeInterner) InternAtom(name string) (xconn.Atom, error) {
	if f.ids == nil {
		f.ids = map[string]xconn.Atom{}
	}
	if a, ok := f.ids[name]; ok {
		return a, nil
	}
	f.next++
	a := xconn.Atom(f.next)
	f.ids[name] = a
	return a, nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeConn, *fakeStore, *fakeClock) {
	t.Helper()
	conn := newFakeConn()
	st := &fakeStore{}
	atoms, err := xatom.Init(&fakeInterner{}, "_TEST_PROPERTY", "_TEST_LOCK", "_TEST_WAKEUP")
	if err != nil {
		t.Fatalf("xatom.Init: %v", err)
	}

	eng := New(conn, atoms, st, 5*time.Second, 64<<10)
	clock := &fakeClock{now: 1000}
	eng.Clock = clock
	buf, err := xfer.New(1 << 16)
	if err != nil {
		t.Fatalf("xfer.New: %v", err)
	}
	t.Cleanup(buf.Close)
	eng.InitReceiver(t.TempDir(), buf)
	return eng, conn, st, clock
}

func TestOwnerChangedStartsTargetsNegotiation(t *testing.T) {
	eng, conn, _, _ := newTestEngine(t)
	eng.OnOwnerChanged(99, 555)

	if eng.Receiver.State() != AwaitingTargets {
		t.Fatalf("state = %v, want AwaitingTargets", eng.Receiver.State())
	}
	if len(conn.converts) != 1 || conn.converts[0].target != eng.Atoms.Targets {
		t.Fatalf("expected a single ConvertSelection(TARGETS) call, got %+v", conn.converts)
	}
}

func TestOwnerChangedDiscardedWhileTransactionLive(t *testing.T) {
	eng, conn, _, _ := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)
	firstConverts := len(conn.converts)

	eng.OnOwnerChanged(100, 2) // should be discarded: not yet timed out
	if len(conn.converts) != firstConverts {
		t.Errorf("a second OwnerChanged mid-transaction issued a new ConvertSelection, want it discarded")
	}
}

func TestOwnerChangedForceResetsAfterDeadline(t *testing.T) {
	eng, _, _, clock := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)
	clock.now += 6000 // past the 5s deadline

	eng.OnOwnerChanged(100, 2)
	if eng.Receiver.State() != AwaitingTargets {
		t.Fatalf("state after forced reset = %v, want AwaitingTargets", eng.Receiver.State())
	}
}

func TestTargetsReplyRejectedByPeerResets(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)
	eng.OnTargetsReply(0, nil, true)

	if eng.Receiver.State() != Idle || eng.Receiver.Locked() {
		t.Errorf("state = %v locked=%v, want Idle/unlocked after a rejected TARGETS reply", eng.Receiver.State(), eng.Receiver.Locked())
	}
}

func TestTargetsReplyPicksBestAndRequestsData(t *testing.T) {
	eng, conn, _, _ := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)

	payload := encodeAtoms(eng.Atoms.Utf8String, eng.Atoms.JPEG)
	eng.OnTargetsReply(eng.Atoms.Targets, payload, false)

	if eng.Receiver.State() != AwaitingData {
		t.Fatalf("state = %v, want AwaitingData", eng.Receiver.State())
	}
	last := conn.converts[len(conn.converts)-1]
	if last.target != eng.Atoms.JPEG {
		t.Errorf("converted target = %v, want JPEG (preferred over UTF8_STRING)", last.target)
	}
}

func TestTargetsReplyWithNoKnownMediaResets(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)
	eng.OnTargetsReply(eng.Atoms.Targets, encodeAtoms(9999), false)

	if eng.Receiver.State() != Idle {
		t.Errorf("state = %v, want Idle after a TARGETS reply with no known media", eng.Receiver.State())
	}
}

func TestDataReplySingleShotFinalizesAndPushes(t *testing.T) {
	eng, _, st, _ := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)
	eng.OnTargetsReply(eng.Atoms.Targets, encodeAtoms(eng.Atoms.Utf8String), false)

	reply := &xconn.PropertyReply{Type: eng.Atoms.Utf8String, Value: []byte("hello clipboard")}
	eng.OnDataReply(eng.Atoms.Utf8String, reply, false)

	if eng.Receiver.State() != Idle || eng.Receiver.Locked() {
		t.Fatalf("state = %v locked=%v, want Idle/unlocked after single-shot finalize", eng.Receiver.State(), eng.Receiver.Locked())
	}
	if len(st.pushed) != 1 {
		t.Fatalf("PushIfExists called %d times, want 1", len(st.pushed))
	}
}

func TestDataReplyIncrStartsStreaming(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)
	eng.OnTargetsReply(eng.Atoms.Targets, encodeAtoms(eng.Atoms.Utf8String), false)

	reply := &xconn.PropertyReply{Type: eng.Atoms.Incr}
	eng.OnDataReply(eng.Atoms.Utf8String, reply, false)

	if eng.Receiver.State() != IncrStreaming {
		t.Fatalf("state = %v, want IncrStreaming", eng.Receiver.State())
	}
}

func TestPropertyNewValueZeroLengthFinalizes(t *testing.T) {
	eng, conn, st, _ := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)
	eng.OnTargetsReply(eng.Atoms.Targets, encodeAtoms(eng.Atoms.Utf8String), false)
	eng.OnDataReply(eng.Atoms.Utf8String, &xconn.PropertyReply{Type: eng.Atoms.Incr}, false)

	conn.propReply = &xconn.PropertyReply{Value: []byte("chunk one")}
	eng.OnPropertyNewValue()
	if eng.Receiver.State() != IncrStreaming {
		t.Fatalf("state after first chunk = %v, want IncrStreaming", eng.Receiver.State())
	}

	conn.propReply = &xconn.PropertyReply{Value: nil}
	eng.OnPropertyNewValue()
	if eng.Receiver.State() != Idle {
		t.Fatalf("state after zero-length chunk = %v, want Idle", eng.Receiver.State())
	}
	if len(st.pushed) != 1 {
		t.Errorf("PushIfExists called %d times, want 1", len(st.pushed))
	}
}

func TestOnTickForceResetsStuckReceiver(t *testing.T) {
	eng, _, _, clock := newTestEngine(t)
	eng.OnOwnerChanged(99, 1)
	clock.now += 6000
	eng.OnTick(clock.now)

	if eng.Receiver.Locked() {
		t.Error("Receiver still locked after OnTick past the deadline")
	}
}

func encodeAtoms(atoms ...xconn.Atom) []byte {
	data := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		v := uint32(a)
		data[i*4+0] = byte(v)
		data[i*4+1] = byte(v >> 8)
		data[i*4+2] = byte(v >> 16)
		data[i*4+3] = byte(v >> 24)
	}
	return data
}
