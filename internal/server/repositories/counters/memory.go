package counters

import (
	"context"
	"sync"
)

type MemoryRepository struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{counts: make(map[string]int64)}
}

func (r *MemoryRepository) Set(ctx context.Context, key string, value int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key] = value
	return nil
}

func (r *MemoryRepository) Next(ctx context.Context, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key], nil
}

func (r *MemoryRepository) Get(ctx context.Context, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key], nil
}
