package ingest

import (
	"slices"
	"sync"
	"time"

	"tally/internal/core"
)

// Phase is a step of the upload state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDecoding    Phase = "decoding"
	PhaseNormalizing Phase = "normalizing"
	PhaseValidating  Phase = "validating"
	PhaseProcessing  Phase = "processing"
	PhaseFailed      Phase = "failed"
	PhaseDone        Phase = "done"
)

// Snapshot is the state shown to the user. It is replaced wholesale on every
// transition and never mutated after publication.
type Snapshot struct {
	Generation uint64
	Phase      Phase
	Totals     []core.CategoryTotal
	Error      string
	FetchError string
	Records    []core.Record
	UpdatedAt  time.Time
}

func (s Snapshot) clone() Snapshot {
	s.Totals = slices.Clone(s.Totals)
	s.Records = slices.Clone(s.Records)
	return s
}

// Store holds the current snapshot. Run transitions carry the generation of
// the run that made them; a run older than the published snapshot cannot
// overwrite it.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
	next    uint64
	now     func() time.Time
}

func NewStore() *Store {
	s := &Store{now: time.Now}
	s.current = Snapshot{Phase: PhaseIdle, Totals: []core.CategoryTotal{}, UpdatedAt: s.now()}
	return s
}

// Current returns a copy of the published snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Begin allocates a generation for a new run and publishes it as decoding.
// Totals and error from the previous run stay visible until this run ends.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	gen := s.next
	s.publish(gen, func(snap *Snapshot) {
		snap.Phase = PhaseDecoding
	})
	return gen
}

// Advance moves the run to phase. It reports whether the snapshot changed.
func (s *Store) Advance(gen uint64, phase Phase) bool {
	return s.apply(gen, func(snap *Snapshot) {
		snap.Phase = phase
	})
}

// Fail clears the totals and records the user-facing message.
func (s *Store) Fail(gen uint64, message string) bool {
	return s.apply(gen, func(snap *Snapshot) {
		snap.Phase = PhaseFailed
		snap.Totals = []core.CategoryTotal{}
		snap.Error = message
	})
}

// Complete publishes new totals and clears any previous error.
func (s *Store) Complete(gen uint64, totals []core.CategoryTotal) bool {
	return s.apply(gen, func(snap *Snapshot) {
		snap.Phase = PhaseDone
		snap.Totals = slices.Clone(totals)
		snap.Error = ""
	})
}

// Settle returns to idle once a run is over. The outcome stays visible.
func (s *Store) Settle(gen uint64) bool {
	return s.apply(gen, func(snap *Snapshot) {
		snap.Phase = PhaseIdle
	})
}

// SetRecords replaces the preloaded records and clears the fetch error.
// Record state is independent of upload runs.
func (s *Store) SetRecords(records []core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(s.current.Generation, func(snap *Snapshot) {
		snap.Records = slices.Clone(records)
		snap.FetchError = ""
	})
}

// SetFetchError records a failed load of existing records.
func (s *Store) SetFetchError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(s.current.Generation, func(snap *Snapshot) {
		snap.Records = nil
		snap.FetchError = message
	})
}

func (s *Store) apply(gen uint64, fn func(*Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.current.Generation {
		return false
	}
	s.publish(gen, fn)
	return true
}

// publish must be called with mu held.
func (s *Store) publish(gen uint64, fn func(*Snapshot)) {
	next := s.current.clone()
	next.Generation = gen
	fn(&next)
	next.UpdatedAt = s.now()
	s.current = next
}
