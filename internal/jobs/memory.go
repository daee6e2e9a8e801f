package jobs

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps jobs in process memory. When more than limit jobs are
// held, the oldest finished ones are evicted.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	limit int
}

func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job), limit: limit}
}

func (s *MemoryStore) Save(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.clone()
	s.evictLocked()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Job, error) {
	s.mu.RLock()
	all := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, j.clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) evictLocked() {
	if s.limit <= 0 || len(s.jobs) <= s.limit {
		return
	}
	var done []*Job
	for _, j := range s.jobs {
		if j.Done() {
			done = append(done, j)
		}
	}
	sortNewestFirst(done)
	for i := len(done) - 1; i >= 0 && len(s.jobs) > s.limit; i-- {
		delete(s.jobs, done[i].ID)
	}
}

func sortNewestFirst(js []*Job) {
	sort.Slice(js, func(a, b int) bool {
		if js[a].CreatedAt.Equal(js[b].CreatedAt) {
			return js[a].ID > js[b].ID
		}
		return js[a].CreatedAt.After(js[b].CreatedAt)
	})
}
