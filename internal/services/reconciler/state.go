package reconciler

import (
	"sync"

	"github.com/gigpay/treasuryops/internal/entity"
)

// state holds the committed view plus the invocation generation used to
// drop stale refresh results. Refreshes triggered by range changes are not
// serialized, so a later-started refresh may finish first; only the
// newest generation is allowed to commit.
type state struct {
	mu   sync.RWMutex
	v    entity.View
	gen  uint64
	done uint64
}

func newState() *state {
	return &state{
		v: entity.View{Mode: entity.ModePrimary, Loading: true},
	}
}

// begin registers a new refresh invocation and returns its generation.
func (s *state) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.v.Loading = true
	return s.gen
}

// commit installs the view if gen is still the newest invocation. It
// reports false for superseded results, which callers discard.
func (s *state) commit(gen uint64, v entity.View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || gen <= s.done {
		return false
	}

	// jobs are refreshed on their own cycle, keep the last known list
	v.Jobs = s.v.Jobs
	v.Loading = false
	s.v = v
	s.done = gen
	return true
}

func (s *state) view() entity.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

func (s *state) mode() entity.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.Mode
}

func (s *state) setJobs(jobs []entity.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Jobs = jobs
}
