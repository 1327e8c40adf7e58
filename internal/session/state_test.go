package session

import (
	"testing"

	"github.com/kjstillabower/weather-fusion-service/internal/models"
)

var parisFR = models.Candidate{Name: "Paris", Region: "Ile-de-France", Country: "France"}

func TestNewState(t *testing.T) {
	s := NewState(models.Imperial)
	if s.CanSearch() {
		t.Error("new state must have the gate closed")
	}
	if s.Unit != models.Imperial || s.Seq != 0 || s.LastResult != nil {
		t.Errorf("NewState() = %+v", s)
	}
}

func TestApplyResolution_Gate(t *testing.T) {
	tests := []struct {
		name       string
		candidates []models.Candidate
		wantOK     bool
	}{
		{name: "one candidate opens gate", candidates: []models.Candidate{parisFR}, wantOK: true},
		{name: "empty closes gate", candidates: []models.Candidate{}, wantOK: false},
		{name: "nil closes gate", candidates: nil, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, seq := NewState(models.Metric).BeginResolution()
			s, applied := s.ApplyResolution(seq, "Paris", tt.candidates)
			if !applied {
				t.Fatal("ApplyResolution() applied = false for current seq")
			}
			if s.CanSearch() != tt.wantOK {
				t.Errorf("CanSearch() = %v, want %v", s.CanSearch(), tt.wantOK)
			}
			if len(s.Candidates) != len(tt.candidates) {
				t.Errorf("Candidates = %v", s.Candidates)
			}
		})
	}
}

// TestCanSearchFor verifies the gate only admits the query that opened it.
func TestCanSearchFor(t *testing.T) {
	s, seq := NewState(models.Metric).BeginResolution()
	s, _ = s.ApplyResolution(seq, "xyzzynotacity", nil)
	s, seq = s.BeginResolution()
	s, _ = s.ApplyResolution(seq, "Paris", []models.Candidate{parisFR})

	tests := []struct {
		query string
		want  bool
	}{
		{query: "Paris", want: true},
		{query: "xyzzynotacity", want: false},
		{query: "paris", want: false},
		{query: "", want: false},
	}
	for _, tt := range tests {
		if got := s.CanSearchFor(tt.query); got != tt.want {
			t.Errorf("CanSearchFor(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}

	s, seq = s.BeginResolution()
	s, _ = s.FailResolution(seq)
	if s.CanSearchFor("Paris") {
		t.Error("CanSearchFor() open after failed resolution")
	}
}

// TestApplyResolution_Stale verifies an older resolution completing after a
// newer one was dispatched never changes state.
func TestApplyResolution_Stale(t *testing.T) {
	s := NewState(models.Metric)
	s, first := s.BeginResolution()  // "P"
	s, second := s.BeginResolution() // "Pa"

	s, applied := s.ApplyResolution(second, "Pa", []models.Candidate{})
	if !applied || s.CanSearch() {
		t.Fatalf("latest resolution not applied: %+v", s)
	}

	before := s
	s, applied = s.ApplyResolution(first, "P", []models.Candidate{parisFR})
	if applied {
		t.Error("stale resolution applied")
	}
	if s.CanSearch() != before.CanSearch() || len(s.Candidates) != 0 {
		t.Errorf("stale resolution changed state: %+v", s)
	}
}

func TestFailResolution(t *testing.T) {
	s, seq := NewState(models.Metric).BeginResolution()
	s, _ = s.ApplyResolution(seq, "Paris", []models.Candidate{parisFR})

	s, seq = s.BeginResolution()
	s, applied := s.FailResolution(seq)
	if !applied || s.CanSearch() || s.Candidates != nil || s.ResolvedQuery != "" {
		t.Errorf("FailResolution() = %+v, applied %v", s, applied)
	}

	s, stale := s.BeginResolution()
	s, _ = s.BeginResolution()
	if _, applied := s.FailResolution(stale); applied {
		t.Error("stale failure applied")
	}
}

// TestState_Immutable verifies transitions do not alter the receiver.
func TestState_Immutable(t *testing.T) {
	base, seq := NewState(models.Metric).BeginResolution()
	candidates := []models.Candidate{parisFR}

	next, _ := base.ApplyResolution(seq, "Paris", candidates)
	candidates[0].Name = "mutated"
	if next.Candidates[0].Name != "Paris" {
		t.Error("ApplyResolution() kept a reference to the caller's slice")
	}
	if base.CanSearch() || base.Candidates != nil {
		t.Errorf("receiver modified: %+v", base)
	}

	toggled := next.WithUnit(models.Imperial)
	if next.Unit != models.Metric || toggled.Unit != models.Imperial {
		t.Errorf("WithUnit() units = %s/%s", next.Unit, toggled.Unit)
	}

	r := models.FusedResult{Name: "Paris, Ile-de-France, France", Unit: models.Metric}
	withResult := next.WithResult("Paris", models.CurrentConditions{Location: parisFR}, models.SunTimes{Sunrise: "6:32:10 AM"}, r)
	if next.HasResult() || !withResult.HasResult() || withResult.LastQuery != "Paris" {
		t.Errorf("WithResult() = %+v, receiver %+v", withResult, next)
	}
}
