package status

import (
	"sync"

	"github.com/vac-tools/vacsync/pkg/models"
)

// Store is the single source of truth shared between download workers and
// the caller. It holds one ChartStatus per OACI code, in insertion order,
// behind a readers-writer lock. All mutation goes through Replace and Patch;
// readers only ever see whole statuses, never one mid-update.
type Store struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]models.ChartStatus
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]models.ChartStatus)}
}

// Replace swaps in a full reconciliation result. Listing order follows the
// order of statuses; duplicate OACI codes keep the first occurrence.
func (s *Store) Replace(statuses []models.ChartStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.byID = make(map[string]models.ChartStatus, len(statuses))
	for _, st := range statuses {
		if _, ok := s.byID[st.OACI]; ok {
			continue
		}
		s.order = append(s.order, st.OACI)
		s.byID[st.OACI] = st
	}
}

// Patch applies a partial update to one chart's status. The mutation runs
// under the write lock, so it must stay an in-memory update. Returns false
// when the OACI code is unknown.
func (s *Store) Patch(oaci string, fn func(*models.ChartStatus)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[oaci]
	if !ok {
		return false
	}
	fn(&st)
	s.byID[oaci] = st
	return true
}

// Remove drops a chart from the store. Used when an orphaned local entry is
// deleted and nothing remains to display.
func (s *Store) Remove(oaci string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[oaci]; !ok {
		return
	}
	delete(s.byID, oaci)
	for i, id := range s.order {
		if id == oaci {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns a point-in-time copy of every status, safe to use after
// release.
func (s *Store) Snapshot() []models.ChartStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ChartStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Get returns a copy of one chart's status.
func (s *Store) Get(oaci string) (models.ChartStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.byID[oaci]
	return st, ok
}

// Len returns the number of tracked charts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
