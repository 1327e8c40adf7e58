// Package session holds per-client search state. State values are immutable;
// every transition returns a new State.
package session

import "github.com/kjstillabower/weather-fusion-service/internal/models"

// State is one client's view: the gate flag, the chosen unit, the latest
// candidates and the last successful search.
type State struct {
	// LastResolvedOK is true iff the latest applied resolution returned at least one candidate.
	LastResolvedOK bool
	Unit           models.Unit
	// Seq is bumped for every dispatched resolution; only the latest may be applied.
	Seq uint64
	// ResolvedQuery is the query of the latest applied resolution; empty after a failure.
	ResolvedQuery string
	Candidates    []models.Candidate
	// LastQuery is the query of the last successful search, reused on unit toggle.
	LastQuery  string
	LastResult *models.FusedResult
	// LastConditions and LastSun are the inputs LastResult was fused from.
	LastConditions *models.CurrentConditions
	LastSun        *models.SunTimes
}

// NewState returns the initial state: gate closed, nothing searched.
func NewState(unit models.Unit) State {
	return State{Unit: unit}
}

// CanSearch reports whether the gate is open.
func (s State) CanSearch() bool {
	return s.LastResolvedOK
}

// CanSearchFor reports whether a weather fetch for query may be attempted:
// the gate is open and it was opened by resolving exactly query.
func (s State) CanSearchFor(query string) bool {
	return s.LastResolvedOK && query == s.ResolvedQuery
}

// BeginResolution returns the state with a new sequence number and that number.
// The caller passes it back to ApplyResolution or FailResolution.
func (s State) BeginResolution() (State, uint64) {
	s.Seq++
	return s, s.Seq
}

// IsCurrent reports whether seq is the latest dispatched resolution.
func (s State) IsCurrent(seq uint64) bool {
	return s.Seq == seq
}

// ApplyResolution records the candidates resolution seq found for query. A
// stale seq leaves the state unchanged and reports false.
func (s State) ApplyResolution(seq uint64, query string, candidates []models.Candidate) (State, bool) {
	if !s.IsCurrent(seq) {
		return s, false
	}
	s.ResolvedQuery = query
	s.Candidates = cloneCandidates(candidates)
	s.LastResolvedOK = len(candidates) > 0
	return s, true
}

// FailResolution closes the gate after resolution seq failed. A stale seq
// leaves the state unchanged and reports false.
func (s State) FailResolution(seq uint64) (State, bool) {
	if !s.IsCurrent(seq) {
		return s, false
	}
	s.ResolvedQuery = ""
	s.Candidates = nil
	s.LastResolvedOK = false
	return s, true
}

// WithUnit returns the state with unit selected. Exactly one unit is active.
func (s State) WithUnit(unit models.Unit) State {
	s.Unit = unit
	return s
}

// WithResult records a successful search of query together with its inputs.
func (s State) WithResult(query string, conditions models.CurrentConditions, sun models.SunTimes, result models.FusedResult) State {
	s.LastQuery = query
	s.LastConditions = &conditions
	s.LastSun = &sun
	s.LastResult = &result
	return s
}

// HasResult reports whether a search has succeeded in this session.
func (s State) HasResult() bool {
	return s.LastResult != nil && s.LastConditions != nil && s.LastSun != nil
}

func cloneCandidates(in []models.Candidate) []models.Candidate {
	if in == nil {
		return []models.Candidate{}
	}
	out := make([]models.Candidate, len(in))
	copy(out, in)
	return out
}
