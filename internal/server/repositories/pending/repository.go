// Package pending implements the write-ahead staging area for score
// submissions. Enqueue is the fast synchronous half of the write path;
// entries leave the queue only after a sync cycle confirms the commit,
// giving at-least-once delivery into the leaderboard.
package pending

import (
	"context"

	"github.com/penter405/cubetimer-backend/internal/server/models"
)

type Repository interface {
	// Enqueue durably stages an entry and returns its queue id.
	// It must succeed independent of downstream availability.
	Enqueue(ctx context.Context, entry models.ScoreEntry) (string, error)

	// ListPending returns all staged entries without locking them;
	// overlapping drains are resolved by the caller's single-flight
	// guard and commit de-duplication.
	ListPending(ctx context.Context) ([]*models.PendingScore, error)

	// Delete acknowledges entries by id. Unknown ids are a no-op.
	Delete(ctx context.Context, ids []string) error
}
