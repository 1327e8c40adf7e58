// Package lifecycle tracks the process phase reported by the health endpoint.
package lifecycle

import "sync/atomic"

// Phase is the process lifecycle phase.
type Phase int32

const (
	// Starting covers startup work such as the initial cache warm.
	Starting Phase = iota
	// Ready means the service accepts traffic.
	Ready
	// ShuttingDown means a termination signal was received and requests are draining.
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

var phase atomic.Int32

// CurrentPhase returns the current phase.
func CurrentPhase() Phase {
	return Phase(phase.Load())
}

// SetReady moves Starting to Ready. It never leaves ShuttingDown.
func SetReady() {
	phase.CompareAndSwap(int32(Starting), int32(Ready))
}

// SetShuttingDown sets or clears the shutdown flag. Call when SIGTERM/SIGINT is received.
// Clearing returns the process to Ready.
func SetShuttingDown(v bool) {
	if v {
		phase.Store(int32(ShuttingDown))
		return
	}
	phase.CompareAndSwap(int32(ShuttingDown), int32(Ready))
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return CurrentPhase() == ShuttingDown
}

// Reset returns to Starting. For tests only.
func Reset() {
	phase.Store(int32(Starting))
}
