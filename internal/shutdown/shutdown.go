// Package shutdown implements the Shutdown Coordinator: the
// single path by which every goroutine the daemon started is told to
// stop. It waits only for the Event Pump; joining the rest is the
// caller's job.
package shutdown

import (
	"context"
	"sync"

	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
)

// Pump is the slice of pump.Pump the coordinator needs.
type Pump interface {
	Wakeup()
	Done() <-chan struct{}
}

// Coordinator runs shutdown exactly once; a second call to Shutdown
// blocks until the first completes and then returns immediately. It
// does not itself join every goroutine the daemon started — that final
// join is the caller's errgroup.Wait, which Shutdown cannot safely
// perform when called from a goroutine that errgroup is waiting on
// (e.g. the signal thread dispatching its own shutdown signal).
type Coordinator struct {
	cancel      context.CancelFunc
	pump        Pump
	stopSignals func()

	once sync.Once
	done chan struct{}
}

// New builds a Coordinator. cancel stops every context.Context-aware
// goroutine (currently the Inject Worker); stopSignals unblocks the
// signal thread.
func New(cancel context.CancelFunc, stopSignals func(), p Pump) *Coordinator {
	return &Coordinator{cancel: cancel, stopSignals: stopSignals, pump: p, done: make(chan struct{})}
}

// Shutdown stops the Inject Worker, unblocks the signal thread, and
// wakes and joins the Event Pump. Safe to call
// from a signal handler goroutine and to call more than once.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		nlog.Infoln("shutdown: stopping")
		c.cancel()
		c.stopSignals()
		c.pump.Wakeup()
		<-c.pump.Done()
		nlog.Infoln("shutdown: complete")
		close(c.done)
	})
	<-c.done
}
