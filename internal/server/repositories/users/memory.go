package users

import (
	"context"
	"sync"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/server/models"
)

// MemoryRepository keeps users in process; tests and local development.
type MemoryRepository struct {
	mu    sync.RWMutex
	users []*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) FindByUserIDs(ctx context.Context, ids []int) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var out []*models.User
	for _, u := range r.users {
		if _, ok := want[u.UserID]; ok {
			clone := *u
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *MemoryRepository) All(ctx context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (r *MemoryRepository) InsertMany(ctx context.Context, users []*models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range users {
		for _, existing := range r.users {
			if existing.Email == u.Email {
				return common.ErrDuplicateKey
			}
		}
	}
	for _, u := range users {
		clone := *u
		r.users = append(r.users, &clone)
	}
	return nil
}

func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}
