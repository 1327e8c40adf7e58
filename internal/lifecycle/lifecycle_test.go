package lifecycle

import "testing"

func TestPhase_DefaultStarting(t *testing.T) {
	Reset()
	if p := CurrentPhase(); p != Starting {
		t.Errorf("CurrentPhase() = %v, want starting", p)
	}
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestSetReady(t *testing.T) {
	Reset()
	defer Reset()
	SetReady()
	if p := CurrentPhase(); p != Ready {
		t.Errorf("CurrentPhase() = %v, want ready", p)
	}
}

func TestSetShuttingDown_True(t *testing.T) {
	Reset()
	defer Reset()
	SetShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
	SetReady()
	if !IsShuttingDown() {
		t.Error("SetReady() must not leave shutting-down")
	}
}

func TestSetShuttingDown_False(t *testing.T) {
	Reset()
	defer Reset()
	SetShuttingDown(true)
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false), want false")
	}
	if p := CurrentPhase(); p != Ready {
		t.Errorf("CurrentPhase() = %v, want ready", p)
	}
}

func TestPhase_String(t *testing.T) {
	tests := map[Phase]string{Starting: "starting", Ready: "ready", ShuttingDown: "shutting-down", Phase(9): "unknown"}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}
