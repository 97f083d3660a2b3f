// Package signals turns asynchronous OS signals into synchronous
// actions on the daemon's other subsystems.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
)

// PopupState is the popup visibility FSM: a USR1 signal toggles it.
type PopupState int

const (
	PopupHidden PopupState = iota
	PopupShown
)

// Handlers bundles the callbacks the coordinator invokes for each
// signal: Shutdown for INT/TERM, TogglePopup for USR1,
// ReinjectSelected for USR2 ("re-inject the current selection without
// raising the menu").
type Handlers struct {
	Shutdown         func()
	TogglePopup      func(next PopupState)
	ReinjectSelected func()
}

// Coordinator owns signal.Notify and the Popup FSM's current state.
type Coordinator struct {
	h Handlers

	mu    sync.Mutex
	popup PopupState

	ch   chan os.Signal
	done chan struct{}
}

// New registers interest in INT, TERM, USR1 and USR2 but does not start
// listening until Run is called.
func New(h Handlers) *Coordinator {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	return &Coordinator{h: h, ch: ch, done: make(chan struct{})}
}

// Run blocks, dispatching signals to the registered Handlers, until
// Stop is called.
func (c *Coordinator) Run() {
	for {
		select {
		case sig := <-c.ch:
			c.dispatch(sig)
		case <-c.done:
			signal.Stop(c.ch)
			return
		}
	}
}

// Stop ends Run's loop. It does not itself invoke Handlers.Shutdown;
// the caller decides whether a signal or some other event triggers
// shutdown.
func (c *Coordinator) Stop() { close(c.done) }

func (c *Coordinator) dispatch(sig os.Signal) {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM:
		nlog.Infoln("signals: received", sig, ", shutting down")
		c.h.Shutdown()

	case syscall.SIGUSR1:
		c.mu.Lock()
		next := PopupShown
		if c.popup == PopupShown {
			next = PopupHidden
		}
		c.popup = next
		c.mu.Unlock()
		if nlog.FastV(2) {
			nlog.Infoln("signals: USR1, toggling popup to", next)
		}
		c.h.TogglePopup(next)

	case syscall.SIGUSR2:
		nlog.Infoln("signals: USR2, re-injecting selection without raising the menu")
		c.h.ReinjectSelected()
	}
}
