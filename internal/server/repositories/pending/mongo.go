package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/server/models"
)

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{col: db.Collection("pending_scores")}
}

func (r *MongoRepository) Enqueue(ctx context.Context, entry models.ScoreEntry) (string, error) {
	score := &models.PendingScore{
		ID:         uuid.NewString(),
		Entry:      entry,
		SyncStatus: models.SyncStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	if _, err := r.col.InsertOne(ctx, score); err != nil {
		return "", fmt.Errorf("enqueue score: %v: %w", err, common.ErrStoreUnavailable)
	}
	return score.ID, nil
}

func (r *MongoRepository) ListPending(ctx context.Context) ([]*models.PendingScore, error) {
	cur, err := r.col.Find(ctx, bson.M{"syncStatus": models.SyncStatusPending})
	if err != nil {
		return nil, fmt.Errorf("list pending: %v: %w", err, common.ErrStoreUnavailable)
	}
	defer cur.Close(ctx)

	var out []*models.PendingScore
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode pending: %v: %w", err, common.ErrStoreUnavailable)
	}
	return out, nil
}

func (r *MongoRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := r.col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("delete pending: %v: %w", err, common.ErrStoreUnavailable)
	}
	return nil
}
