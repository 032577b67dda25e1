package metadata

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore serves finished jobs from an LRU cache. Only terminal jobs
// are cached since they never change again.
type CachedStore struct {
	Store
	cache *lru.Cache[string, *Job]
}

// NewCachedStore wraps store with a cache of size entries.
func NewCachedStore(store Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *Job](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{Store: store, cache: cache}, nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (*Job, error) {
	if job, ok := s.cache.Get(id); ok {
		return job.Clone(), nil
	}
	job, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(job)
	return job, nil
}

func (s *CachedStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Job, error) {
	s.cache.Remove(id)
	job, err := s.Store.Update(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	s.remember(job)
	return job, nil
}

// Len returns the number of cached jobs.
func (s *CachedStore) Len() int {
	return s.cache.Len()
}

func (s *CachedStore) remember(job *Job) {
	if job.Status.IsTerminal() {
		s.cache.Add(job.ID, job.Clone())
	}
}
