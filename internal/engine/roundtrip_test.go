package engine

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/phuquocloc/xcbd/internal/xatom"
	"github.com/phuquocloc/xcbd/internal/xconn"
	"github.com/phuquocloc/xcbd/internal/xfer"
)

var _ = Describe("a full capture-then-reinject round trip", func() {
	var (
		eng  *Engine
		conn *fakeConn
		st   *fakeStore
		dir  string
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "xcbd-engine-suite-*")
		Expect(err).NotTo(HaveOccurred())

		conn = newFakeConn()
		st = &fakeStore{}
		atoms, err := xatom.Init(&fakeInterner{}, "_TEST_PROPERTY", "_TEST_LOCK", "_TEST_WAKEUP")
		Expect(err).NotTo(HaveOccurred())

		eng = New(conn, atoms, st, 5*time.Second, 64<<10)
		buf, err := xfer.New(1 << 16)
		Expect(err).NotTo(HaveOccurred())
		eng.InitReceiver(dir, buf)
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("captures a peer's selection and re-serves it once claimed", func() {
		eng.OnOwnerChanged(99, 1)
		Expect(eng.Receiver.State()).To(Equal(AwaitingTargets))

		eng.OnTargetsReply(eng.Atoms.Targets, encodeAtoms(eng.Atoms.Utf8String), false)
		Expect(eng.Receiver.State()).To(Equal(AwaitingData))

		reply := &xconn.PropertyReply{Type: eng.Atoms.Utf8String, Value: []byte("captured text")}
		eng.OnDataReply(eng.Atoms.Utf8String, reply, false)
		Expect(eng.Receiver.State()).To(Equal(Idle))
		Expect(st.pushed).To(HaveLen(1))

		ok := eng.ClaimOwnership([]byte("captured text"), xatom.KindTextUTF8)
		Expect(ok).To(BeTrue())
		Expect(conn.owner).To(Equal(conn.win))

		eng.OnSelectionRequest(42, eng.Atoms.Clipboard, eng.Atoms.Utf8String, 77, 100)
		last := conn.changes[len(conn.changes)-1]
		Expect(last.kind).To(Equal("bytes"))
		Expect(string(last.bytes)).To(Equal("captured text"))
	})

	It("rejects a reinject claim while the capture is still live", func() {
		eng.OnOwnerChanged(99, 1)
		ok := eng.ClaimOwnership([]byte("too soon"), xatom.KindTextUTF8)
		Expect(ok).To(BeFalse())
	})
})
