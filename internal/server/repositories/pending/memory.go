package pending

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/penter405/cubetimer-backend/internal/server/models"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	scores []*models.PendingScore
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Enqueue(ctx context.Context, entry models.ScoreEntry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	score := &models.PendingScore{
		ID:         uuid.NewString(),
		Entry:      entry,
		SyncStatus: models.SyncStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	r.scores = append(r.scores, score)
	return score.ID, nil
}

func (r *MemoryRepository) ListPending(ctx context.Context) ([]*models.PendingScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.PendingScore
	for _, s := range r.scores {
		if s.SyncStatus == models.SyncStatusPending {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := r.scores[:0]
	for _, s := range r.scores {
		if _, ok := drop[s.ID]; !ok {
			kept = append(kept, s)
		}
	}
	r.scores = kept
	return nil
}
