package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// MemoryWaitlistStore keeps waitlists in process memory. Contents are lost on restart.
type MemoryWaitlistStore struct {
	mu      sync.RWMutex
	entries map[string][]models.WaitlistEntry
}

// NewMemoryWaitlistStore constructs an empty store.
func NewMemoryWaitlistStore() *MemoryWaitlistStore {
	return &MemoryWaitlistStore{entries: make(map[string][]models.WaitlistEntry)}
}

// Get returns a copy of every entry (active and inactive) recorded for the course.
func (s *MemoryWaitlistStore) Get(ctx context.Context, courseID string) ([]models.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.entries[courseID]), nil
}

// Put replaces the course's entries.
func (s *MemoryWaitlistStore) Put(ctx context.Context, courseID string, entries []models.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) == 0 {
		delete(s.entries, courseID)
		return nil
	}
	s.entries[courseID] = cloneEntries(entries)
	return nil
}

// CourseIDs lists courses with at least one recorded entry.
func (s *MemoryWaitlistStore) CourseIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneEntries(entries []models.WaitlistEntry) []models.WaitlistEntry {
	if entries == nil {
		return nil
	}
	out := make([]models.WaitlistEntry, len(entries))
	copy(out, entries)
	return out
}
