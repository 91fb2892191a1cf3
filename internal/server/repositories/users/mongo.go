package users

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/server/models"
)

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{col: db.Collection("users")}
}

func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, common.ErrNotFound
		}
		return nil, storeErr("find user by email", err)
	}
	return user, nil
}

func (r *MongoRepository) FindByUserIDs(ctx context.Context, ids []int) ([]*models.User, error) {
	cur, err := r.col.Find(ctx, bson.M{"userID": bson.M{"$in": ids}})
	if err != nil {
		return nil, storeErr("find users by ids", err)
	}
	defer cur.Close(ctx)

	var out []*models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("decode users", err)
	}
	return out, nil
}

func (r *MongoRepository) All(ctx context.Context) ([]*models.User, error) {
	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, storeErr("list users", err)
	}
	defer cur.Close(ctx)

	var out []*models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("decode users", err)
	}
	return out, nil
}

func (r *MongoRepository) InsertMany(ctx context.Context, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}

	docs := make([]any, 0, len(users))
	for _, u := range users {
		docs = append(docs, u)
	}

	if _, err := r.col.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert users: %w", common.ErrDuplicateKey)
		}
		return storeErr("insert users", err)
	}
	return nil
}

func (r *MongoRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, storeErr("count users", err)
	}
	return n, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, common.ErrStoreUnavailable)
}
