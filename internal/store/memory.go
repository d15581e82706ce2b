package store

import (
	"errors"
	"sync"

	"github.com/i474232898/cmip6-download/internal/cmip6"
)

var (
	// ErrNotFound is returned when no run or outcome matches the lookup.
	ErrNotFound = errors.New("no matching run or outcome")
)

// RunRecord holds the summary and the ordered outcomes of one batch run.
type RunRecord struct {
	Summary  cmip6.RunSummary `json:"summary"`
	Outcomes []cmip6.Outcome  `json:"outcomes"`
}

// MemoryStore is a concurrency-safe in-memory record of recent batch runs.
// The batch writes to it while the status API reads from it.
type MemoryStore struct {
	mu sync.RWMutex

	// runs in start order, oldest first
	runs []*RunRecord
	byID map[string]*RunRecord

	// retention configuration
	maxRuns int // max number of runs kept
}

// NewMemoryStore creates a new MemoryStore.
// If maxRuns is <= 0, it is treated as unlimited.
func NewMemoryStore(maxRuns int) *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*RunRecord),
		maxRuns: maxRuns,
	}
}

// StartRun registers a new run and enforces retention.
func (s *MemoryStore) StartRun(summary cmip6.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &RunRecord{Summary: summary}
	s.runs = append(s.runs, rec)
	s.byID[summary.ID] = rec

	// Enforce retention by count.
	if s.maxRuns > 0 && len(s.runs) > s.maxRuns {
		over := len(s.runs) - s.maxRuns
		for _, old := range s.runs[:over] {
			delete(s.byID, old.Summary.ID)
		}
		s.runs = append([]*RunRecord(nil), s.runs[over:]...)
	}
}

// SaveOutcome appends an outcome to a run and keeps its counters current.
// Outcomes for unknown runs are dropped.
func (s *MemoryStore) SaveOutcome(runID string, o cmip6.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[runID]
	if !ok {
		return
	}
	rec.Outcomes = append(rec.Outcomes, o)
	rec.Summary.Count(o)
}

// FinishRun stores the final summary of a run.
func (s *MemoryStore) FinishRun(summary cmip6.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byID[summary.ID]; ok {
		rec.Summary = summary
	}
}

// GetRun returns a copy of the run with the given ID.
func (s *MemoryStore) GetRun(id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

// GetLatest returns a copy of the most recently started run.
func (s *MemoryStore) GetLatest() (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return RunRecord{}, ErrNotFound
	}
	return copyRecord(s.runs[len(s.runs)-1]), nil
}

// LatestOutcome returns the newest recorded outcome for a triple across runs.
func (s *MemoryStore) LatestOutcome(t cmip6.Triple) (cmip6.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.runs) - 1; i >= 0; i-- {
		outcomes := s.runs[i].Outcomes
		for j := len(outcomes) - 1; j >= 0; j-- {
			if outcomes[j].Triple == t {
				return outcomes[j], nil
			}
		}
	}
	return cmip6.Outcome{}, ErrNotFound
}

func copyRecord(rec *RunRecord) RunRecord {
	return RunRecord{
		Summary:  rec.Summary,
		Outcomes: append([]cmip6.Outcome(nil), rec.Outcomes...),
	}
}
