// Package users stores the document-store generation of the identity
// directory, the target of the sheet migration.
package users

import (
	"context"

	"github.com/penter405/cubetimer-backend/internal/server/models"
)

type Repository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUserIDs(ctx context.Context, ids []int) ([]*models.User, error)
	All(ctx context.Context) ([]*models.User, error)

	// InsertMany is additive-only: callers deduplicate against All or
	// FindByEmail first, existing documents are never overwritten.
	InsertMany(ctx context.Context, users []*models.User) error

	Count(ctx context.Context) (int64, error)
}
