// Command xcbd is the CLIPBOARD history daemon: it watches ownership
// changes on the X CLIPBOARD selection, persists every payload it
// understands to disk, and re-injects a history item the user picks
// from a rofi menu back onto the selection.
package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/phuquocloc/xcbd/internal/cmn"
	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
	"github.com/phuquocloc/xcbd/internal/config"
	"github.com/phuquocloc/xcbd/internal/engine"
	"github.com/phuquocloc/xcbd/internal/guard"
	"github.com/phuquocloc/xcbd/internal/inject"
	"github.com/phuquocloc/xcbd/internal/menu"
	"github.com/phuquocloc/xcbd/internal/pump"
	"github.com/phuquocloc/xcbd/internal/shutdown"
	"github.com/phuquocloc/xcbd/internal/signals"
	"github.com/phuquocloc/xcbd/internal/store"
	"github.com/phuquocloc/xcbd/internal/xatom"
	"github.com/phuquocloc/xcbd/internal/xconn"
	"github.com/phuquocloc/xcbd/internal/xfer"
)

// Exit codes: 0 normal, non-zero any init failure.
const (
	exitOK = iota
	exitBadConfig
	exitDisplay
	exitAnotherInstance
	exitStorage
	exitBuffer
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Getenv("XCBD_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "xcbd: loading config:", err)
		return exitBadConfig
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		fmt.Fprintln(os.Stderr, "xcbd: preparing data directories:", err)
		return exitStorage
	}
	if err := nlog.Init(cfg.RuntimeDir); err != nil {
		fmt.Fprintln(os.Stderr, "xcbd: initializing log:", err)
		return exitStorage
	}
	nlog.Infoln("xcbd: starting")

	conn, err := xconn.Open(cfg.DisplayName)
	if err != nil {
		nlog.Errorln("xcbd: opening display:", err)
		return exitDisplay
	}
	defer conn.Close()

	atoms, err := xatom.Init(conn, "_XCBD_TRANSFER", cfg.LockAtomName(), "_XCBD_WAKEUP")
	if err != nil {
		nlog.Errorln("xcbd: interning atoms:", err)
		return exitDisplay
	}
	if _, err := conn.CreateListenerWindow(atoms.Clipboard); err != nil {
		nlog.Errorln("xcbd: creating listener window:", err)
		return exitDisplay
	}

	if err := guard.Claim(conn, atoms.LockSel); err != nil {
		if err == cmn.ErrAnotherInstance {
			nlog.Errorln("xcbd: another instance is already running")
		} else {
			nlog.Errorln("xcbd: single-instance guard:", err)
		}
		return exitAnotherInstance
	}

	st, err := store.New(cfg.DBDir(), cfg.Capacity)
	if err != nil {
		nlog.Errorln("xcbd: initializing history store:", err)
		return exitStorage
	}
	if err := st.Scan(); err != nil {
		nlog.Errorln("xcbd: scanning history store:", err)
		return exitStorage
	}

	buf, err := xfer.New(cfg.TransferBufferBytes)
	if err != nil {
		nlog.Errorln("xcbd: allocating transfer buffer:", err)
		return exitBuffer
	}
	defer buf.Close()
	if !buf.Locked() {
		nlog.Warningln("xcbd: transfer buffer could not be memory-locked, proceeding unlocked")
	}

	eng := engine.New(conn, atoms, st, cfg.TransactionDeadline, cfg.IncrChunkBytes)
	eng.InitReceiver(cfg.DBDir(), buf)

	p := pump.New(conn, eng, atoms)

	ctx, cancel := context.WithCancel(context.Background())
	var group errgroup.Group

	worker := inject.New(st, p.Claims(), p.Ready(), cfg.InjectBudgetBytes)
	group.Go(func() error {
		worker.Run(ctx)
		return nil
	})

	var sig *signals.Coordinator
	coord := shutdown.New(cancel, func() { sig.Stop() }, p)

	sig = signals.New(signals.Handlers{
		Shutdown: coord.Shutdown,
		TogglePopup: func(next signals.PopupState) {
			if next == signals.PopupShown {
				showMenu(cfg, st, worker)
			}
		},
		ReinjectSelected: worker.Wake,
	})
	group.Go(func() error {
		sig.Run()
		return nil
	})

	group.Go(func() error {
		p.Run()
		return nil
	})

	<-p.Done()
	coord.Shutdown() // idempotent: a no-op if a signal already drove shutdown
	group.Wait()
	nlog.Infoln("xcbd: stopped")
	nlog.Flush()
	return exitOK
}

// showMenu runs synchronously on the signal goroutine (via TogglePopup):
// it writes the menu scratch file, runs rofi, and acts on the reply.
func showMenu(cfg *config.Config, st *store.Store, worker *inject.Worker) {
	n := st.Size()
	if err := menu.WriteFile(cfg.MenuFilePath(), st, cfg.InjectBudgetBytes); err != nil {
		nlog.Errorln("xcbd: writing menu file:", err)
		return
	}
	sel, err := menu.Run(cfg.RofiPath, cfg.RofiPrompt, cfg.MenuFilePath(), n)
	if err != nil {
		nlog.Errorln("xcbd: running menu:", err)
		return
	}
	switch {
	case sel.Cancelled:
		nlog.Infoln("xcbd: menu cancelled")
	case sel.ClearAll:
		if err := st.ClearAll(); err != nil {
			nlog.Errorln("xcbd: clearing history:", err)
		}
	default:
		st.SetSelected(sel.Index)
		worker.Wake()
	}
}
