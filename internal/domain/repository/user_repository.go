package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// UserRepository defines the interface for user-related database operations.
type UserRepository interface {
	// EnsureByIdentity returns the user for identityID, creating the row
	// with trial defaults if it does not exist yet. Concurrent calls for
	// the same identity must resolve to the same single row.
	EnsureByIdentity(ctx context.Context, identityID, email, name string, trialEndsAt time.Time) (*entity.User, error)

	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByIdentityID(ctx context.Context, identityID string) (*entity.User, error)
	GetByCustomerRef(ctx context.Context, customerRef string) (*entity.User, error)

	// Update writes the mutable plan and profile columns of u. Every field
	// write is an assignment, never an increment, so replays converge.
	Update(ctx context.Context, u *entity.User) error

	// SetCustomerRefIfEmpty records the billing customer reference exactly
	// once; a second call with a different ref leaves the row unchanged and
	// returns the stored value.
	SetCustomerRefIfEmpty(ctx context.Context, id, customerRef string) (string, error)

	// IncrementThreadCount bumps the counter and returns the new value.
	IncrementThreadCount(ctx context.Context, id string) (int, error)
}
