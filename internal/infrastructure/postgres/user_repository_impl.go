package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
	"github.com/lumenchat/lumenchat-backend/internal/domain/repository"
)

const userColumns = `id, identity_id, email, name, avatar_url, plan_status, trial_ends_at,
	COALESCE(billing_customer_ref, ''), COALESCE(billing_subscription_ref, ''),
	thread_count, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	if err := row.Scan(&u.ID, &u.IdentityID, &u.Email, &u.Name, &u.AvatarURL,
		&u.PlanStatus, &u.TrialEndsAt, &u.BillingCustomerRef, &u.BillingSubscriptionRef,
		&u.ThreadCount, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// EnsureByIdentity upserts on the unique identity index. The DO UPDATE arm
// only refreshes profile fields from the token, so an existing row keeps its
// plan state and the insert stays idempotent under concurrent first requests.
func (r *UserRepository) EnsureByIdentity(ctx context.Context, identityID, email, name string, trialEndsAt time.Time) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (identity_id, email, name, plan_status, trial_ends_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = now()
		RETURNING `+userColumns+`
	`, identityID, email, name, entity.PlanTrial, trialEndsAt)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByIdentityID(ctx context.Context, identityID string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE identity_id = $1
	`, identityID)
	return scanUser(row)
}

func (r *UserRepository) GetByCustomerRef(ctx context.Context, customerRef string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE billing_customer_ref = $1
	`, customerRef)
	return scanUser(row)
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	u.UpdatedAt = time.Now()

	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $1, name = $2, avatar_url = $3, plan_status = $4,
			trial_ends_at = $5, billing_subscription_ref = NULLIF($6, ''),
			updated_at = $7
		WHERE id = $8
	`, u.Email, u.Name, u.AvatarURL, u.PlanStatus,
		u.TrialEndsAt, u.BillingSubscriptionRef, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *UserRepository) SetCustomerRefIfEmpty(ctx context.Context, id, customerRef string) (string, error) {
	var stored string
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET billing_customer_ref = COALESCE(billing_customer_ref, $1), updated_at = now()
		WHERE id = $2
		RETURNING billing_customer_ref
	`, customerRef, id).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", err
	}
	return stored, nil
}

func (r *UserRepository) IncrementThreadCount(ctx context.Context, id string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET thread_count = thread_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING thread_count
	`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
