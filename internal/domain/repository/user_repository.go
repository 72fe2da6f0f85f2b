package repository

import (
	"context"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
)

// UserRepository defines the interface for user-related database operations.
//
// Lookups of a missing user return an error matching apperror.ErrNotFound.
// Create and Update return apperror.ErrConflict when the email is already
// taken by another user; the store's unique index is the final word on that.
type UserRepository interface {
	List(ctx context.Context) ([]*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Create(ctx context.Context, u *entity.User) error
	Update(ctx context.Context, u *entity.User) error
	// Delete removes the user and returns the row as it was before deletion.
	Delete(ctx context.Context, id string) (*entity.User, error)
}
