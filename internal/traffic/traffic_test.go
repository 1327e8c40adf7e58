package traffic

import (
	"testing"
	"time"
)

func newTestTracker(maxAge time.Duration) (*Tracker, *time.Time) {
	now := time.Date(2024, 4, 28, 21, 0, 0, 0, time.UTC)
	tr := NewTracker(maxAge)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestTracker_Empty(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	if n := tr.Total(time.Minute); n != 0 {
		t.Errorf("Total() = %d, want 0", n)
	}
	if f, total := tr.ErrorRate(time.Minute); f != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", f, total)
	}
}

func TestTracker_ErrorRate(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	tr.Record(Success)
	tr.Record(Success)
	tr.Record(Failure)
	tr.Record(Denied)

	f, total := tr.ErrorRate(time.Minute)
	if f != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", f, total)
	}
	if n := tr.Count(Denied, time.Minute); n != 1 {
		t.Errorf("Count(Denied) = %d, want 1", n)
	}
	if n := tr.Total(time.Minute); n != 4 {
		t.Errorf("Total() = %d, want 4", n)
	}
}

// TestTracker_Window verifies outcomes outside the window are not counted.
func TestTracker_Window(t *testing.T) {
	tr, now := newTestTracker(5 * time.Minute)
	tr.Record(Failure)
	*now = now.Add(2 * time.Minute)
	tr.Record(Success)

	if f, total := tr.ErrorRate(time.Minute); f != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", f, total)
	}
	if f, total := tr.ErrorRate(3 * time.Minute); f != 1 || total != 2 {
		t.Errorf("ErrorRate(3m) = (%d, %d), want (1, 2)", f, total)
	}
}

// TestTracker_Prune verifies outcomes older than maxAge are dropped on record.
func TestTracker_Prune(t *testing.T) {
	tr, now := newTestTracker(time.Minute)
	tr.Record(Failure)
	tr.Record(Failure)
	*now = now.Add(2 * time.Minute)
	tr.Record(Success)

	if got := len(tr.events[Failure]); got != 0 {
		t.Errorf("retained %d stale failures, want 0", got)
	}
	if n := tr.Total(time.Hour); n != 1 {
		t.Errorf("Total() = %d, want 1", n)
	}
}

func TestTracker_IgnoresUnknownOutcome(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	tr.Record(Outcome(42))
	tr.Record(Outcome(-1))
	if n := tr.Total(time.Minute); n != 0 {
		t.Errorf("Total() = %d, want 0", n)
	}
	if n := tr.Count(Outcome(42), time.Minute); n != 0 {
		t.Errorf("Count(42) = %d, want 0", n)
	}
}

func TestPackageLevel(t *testing.T) {
	Reset()
	defer Reset()
	Record(Success)
	Record(Failure)
	Record(Denied)
	if n := DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
	if n := RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	if f, total := ErrorRate(time.Minute); f != 1 || total != 2 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 2)", f, total)
	}
}
