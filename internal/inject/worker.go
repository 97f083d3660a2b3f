// Package inject implements the Inject Worker: a dedicated
// goroutine that loads a selected history item into memory and hands it
// to the Provider via the Event Pump's claim channel.
package inject

import (
	"context"
	"errors"
	"io/fs"

	"golang.org/x/sync/semaphore"

	"github.com/phuquocloc/xcbd/internal/cmn"
	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
	"github.com/phuquocloc/xcbd/internal/pump"
	"github.com/phuquocloc/xcbd/internal/store"
)

// HistoryReader is the slice of store.Store the worker needs.
type HistoryReader interface {
	GetSelectedItem() (store.Item, error)
	ReadBinary(n int, maxLen int64) ([]byte, error)
	GetSelected() int
}

// Worker sleeps on a binary semaphore (golang.org/x/sync/semaphore,
// weight 1) and wakes on a UI selection or a "toggle-and-inject" signal.
type Worker struct {
	store        HistoryReader
	claims       chan<- pump.ClaimRequest
	ready        <-chan struct{}
	injectBudget int64

	sem *semaphore.Weighted
}

// New builds a Worker. claims is the Pump's claim channel; ready is
// closed once the Pump's atoms and listener window exist.
func New(st HistoryReader, claims chan<- pump.ClaimRequest, ready <-chan struct{}, injectBudget int64) *Worker {
	sem := semaphore.NewWeighted(1)
	_ = sem.Acquire(context.Background(), 1) // starts empty: Wake posts it
	return &Worker{store: st, claims: claims, ready: ready, injectBudget: injectBudget, sem: sem}
}

// Wake posts the semaphore, waking the worker once. Posting while already posted
// is a no-op, matching a binary semaphore's saturating behavior.
func (w *Worker) Wake() {
	if w.sem.TryAcquire(1) {
		// a wake was already pending: we just took its token, so give
		// it straight back, leaving exactly one pending wake.
		w.sem.Release(1)
		return
	}
	w.sem.Release(1)
}

// Run blocks waiting for wakes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	<-w.ready
	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return // ctx cancelled: shutdown
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.injectOnce()
	}
}

func (w *Worker) injectOnce() {
	item, err := w.store.GetSelectedItem()
	if err != nil {
		if err == cmn.ErrEmpty || err == cmn.ErrOutOfRange {
			nlog.Infoln("inject: nothing selected or store empty, skipping")
			return
		}
		nlog.Warningln("inject: failed to read selected item:", err)
		return
	}

	bytes, err := w.store.ReadBinary(w.store.GetSelected(), w.injectBudget)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			nlog.Warningln("inject: selected file is missing, leaving clipboard untouched:", item.Filename)
			return
		}
		if err == cmn.ErrTooLarge {
			nlog.Warningln("inject: selected file exceeds the inject budget, skipping:", item.Filename)
			return
		}
		nlog.Warningln("inject: failed to read", item.Filename, ":", err)
		return
	}
	if len(bytes) == 0 {
		nlog.Warningln("inject: selected file is empty, leaving clipboard untouched:", item.Filename)
		return
	}

	done := make(chan bool, 1)
	w.claims <- pump.ClaimRequest{Bytes: bytes, Kind: item.Kind, Done: done}
	if !<-done {
		nlog.Infoln("inject: claim discarded, a transfer was in flight")
	}
}
