package signals

import (
	"syscall"
	"testing"
)

func TestDispatchTogglesPopupState(t *testing.T) {
	var seen []PopupState
	c := &Coordinator{h: Handlers{
		Shutdown:         func() {},
		TogglePopup:      func(s PopupState) { seen = append(seen, s) },
		ReinjectSelected: func() {},
	}}

	c.dispatch(syscall.SIGUSR1)
	c.dispatch(syscall.SIGUSR1)

	if len(seen) != 2 || seen[0] != PopupShown || seen[1] != PopupHidden {
		t.Fatalf("toggle sequence = %v, want [Shown Hidden]", seen)
	}
}

func TestDispatchShutdownOnTermOrInt(t *testing.T) {
	calls := 0
	c := &Coordinator{h: Handlers{
		Shutdown:         func() { calls++ },
		TogglePopup:      func(PopupState) {},
		ReinjectSelected: func() {},
	}}
	c.dispatch(syscall.SIGINT)
	c.dispatch(syscall.SIGTERM)
	if calls != 2 {
		t.Errorf("Shutdown called %d times, want 2", calls)
	}
}

func TestDispatchUsr2ReinjectsWithoutTogglingPopup(t *testing.T) {
	popupCalls, reinjectCalls := 0, 0
	c := &Coordinator{h: Handlers{
		Shutdown:         func() {},
		TogglePopup:      func(PopupState) { popupCalls++ },
		ReinjectSelected: func() { reinjectCalls++ },
	}}
	c.dispatch(syscall.SIGUSR2)
	if reinjectCalls != 1 || popupCalls != 0 {
		t.Errorf("reinjectCalls=%d popupCalls=%d, want 1/0", reinjectCalls, popupCalls)
	}
}
