package counters

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/penter405/cubetimer-backend/internal/common"
)

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{col: db.Collection("counts")}
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Count int64  `bson:"count"`
}

func (r *MongoRepository) Set(ctx context.Context, key string, value int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"count": value}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set counter %s: %v: %w", key, err, common.ErrStoreUnavailable)
	}
	return nil
}

func (r *MongoRepository) Next(ctx context.Context, key string) (int64, error) {
	doc := counterDoc{}
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"count": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %v: %w", key, err, common.ErrStoreUnavailable)
	}
	return doc.Count, nil
}

func (r *MongoRepository) Get(ctx context.Context, key string) (int64, error) {
	doc := counterDoc{}
	err := r.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("get counter %s: %v: %w", key, err, common.ErrStoreUnavailable)
	}
	return doc.Count, nil
}
