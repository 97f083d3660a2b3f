package inject

import (
	"os"
	"testing"
	"time"

	"github.com/phuquocloc/xcbd/internal/cmn"
	"github.com/phuquocloc/xcbd/internal/pump"
	"github.com/phuquocloc/xcbd/internal/store"
	"github.com/phuquocloc/xcbd/internal/xatom"
)

type fakeHistory struct {
	item    store.Item
	itemErr error
	bytes   []byte
	readErr error
	selected int
}

func (f *fakeHistory) GetSelectedItem() (store.Item, error) { return f.item, f.itemErr }
func (f *fakeHistory) ReadBinary(int, int64) ([]byte, error) { return f.bytes, f.readErr }
func (f *fakeHistory) GetSelected() int                       { return f.selected }

func newReadyWorker(st HistoryReader) (*Worker, chan pump.ClaimRequest) {
	claims := make(chan pump.ClaimRequest, 1)
	ready := make(chan struct{})
	close(ready)
	return New(st, claims, ready, 1<<20), claims
}

func TestInjectOnceSkipsWhenStoreEmpty(t *testing.T) {
	w, claims := newReadyWorker(&fakeHistory{itemErr: cmn.ErrEmpty})
	w.injectOnce()
	select {
	case req := <-claims:
		t.Fatalf("unexpected claim posted: %+v", req)
	default:
	}
}

func TestInjectOnceSkipsWhenNothingSelected(t *testing.T) {
	w, claims := newReadyWorker(&fakeHistory{itemErr: cmn.ErrOutOfRange})
	w.injectOnce()
	select {
	case req := <-claims:
		t.Fatalf("unexpected claim posted: %+v", req)
	default:
	}
}

func TestInjectOnceSkipsWhenFileMissing(t *testing.T) {
	w, claims := newReadyWorker(&fakeHistory{
		item:    store.Item{Filename: "gone.txt", Kind: xatom.KindTextUTF8},
		readErr: os.ErrNotExist,
	})
	w.injectOnce()
	select {
	case req := <-claims:
		t.Fatalf("unexpected claim posted: %+v", req)
	default:
	}
}

func TestInjectOnceSkipsWhenFileMissingOnDisk(t *testing.T) {
	// Exercises the real store.Store -> os.Open -> cmn.Wrapf chain rather
	// than fakeHistory's unwrapped os.ErrNotExist, since pkg/errors wraps
	// the *os.PathError behind withMessage/withStack and errors.Is must
	// still see through that to fs.ErrNotExist.
	dir := t.TempDir()
	st, err := store.New(dir, 4)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	if err := st.Push("gone.txt"); err != nil {
		t.Fatalf("store.Push: %v", err)
	}
	st.SetSelected(0)

	claims := make(chan pump.ClaimRequest, 1)
	ready := make(chan struct{})
	close(ready)
	w := New(st, claims, ready, 1<<20)

	w.injectOnce()
	select {
	case req := <-claims:
		t.Fatalf("unexpected claim posted for a missing on-disk file: %+v", req)
	default:
	}
}

func TestInjectOnceSkipsWhenTooLarge(t *testing.T) {
	w, claims := newReadyWorker(&fakeHistory{
		item:    store.Item{Filename: "big.bin", Kind: xatom.KindImagePNG},
		readErr: cmn.ErrTooLarge,
	})
	w.injectOnce()
	select {
	case req := <-claims:
		t.Fatalf("unexpected claim posted: %+v", req)
	default:
	}
}

func TestInjectOnceSkipsWhenEmptyFile(t *testing.T) {
	w, claims := newReadyWorker(&fakeHistory{
		item:  store.Item{Filename: "empty.txt", Kind: xatom.KindTextUTF8},
		bytes: nil,
	})
	w.injectOnce()
	select {
	case req := <-claims:
		t.Fatalf("unexpected claim posted: %+v", req)
	default:
	}
}

func TestInjectOncePostsClaimOnSuccess(t *testing.T) {
	w, claims := newReadyWorker(&fakeHistory{
		item:  store.Item{Filename: "clip.txt", Kind: xatom.KindTextUTF8},
		bytes: []byte("hello clipboard"),
	})

	resultCh := make(chan struct{})
	go func() {
		w.injectOnce()
		close(resultCh)
	}()

	select {
	case req := <-claims:
		if string(req.Bytes) != "hello clipboard" || req.Kind != xatom.KindTextUTF8 {
			t.Errorf("claim = %+v, want bytes=%q kind=%v", req, "hello clipboard", xatom.KindTextUTF8)
		}
		req.Done <- true
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a claim to be posted")
	}

	select {
	case <-resultCh:
	case <-time.After(time.Second):
		t.Fatal("injectOnce did not return after the claim was accepted")
	}
}

func TestWakeIsIdempotentWhenAlreadyPending(t *testing.T) {
	w, _ := newReadyWorker(&fakeHistory{})
	w.Wake()
	w.Wake()

	if !w.sem.TryAcquire(1) {
		t.Fatal("expected exactly one pending wake token after two Wake calls")
	}
	if w.sem.TryAcquire(1) {
		t.Fatal("expected no second wake token")
	}
}
