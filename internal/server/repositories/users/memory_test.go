package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/server/models"
)

func seed(t *testing.T, r *MemoryRepository, users ...*models.User) {
	t.Helper()
	require.NoError(t, r.InsertMany(context.Background(), users))
}

func TestMemory_FindByEmail(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, &models.User{Email: "alice@example.com", UserID: 1, Nickname: "Alice#1"})

	got, err := r.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UserID)

	_, err = r.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemory_FindByUserIDs(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r,
		&models.User{Email: "alice@example.com", UserID: 1},
		&models.User{Email: "bob@example.com", UserID: 2},
		&models.User{Email: "carol@example.com", UserID: 3},
	)

	got, err := r.FindByUserIDs(context.Background(), []int{1, 3, 99})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemory_InsertManyRejectsDuplicates(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, &models.User{Email: "alice@example.com", UserID: 1})

	err := r.InsertMany(context.Background(), []*models.User{
		{Email: "alice@example.com", UserID: 9},
	})
	assert.ErrorIs(t, err, common.ErrDuplicateKey)

	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemory_ReadsReturnClones(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, &models.User{Email: "alice@example.com", UserID: 1, Nickname: "Alice#1"})

	got, err := r.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	got.Nickname = "mutated"

	again, err := r.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice#1", again.Nickname)
}
