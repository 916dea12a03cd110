package repo

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get retrieves a user by id.
func (r *UserRepository) Get(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT id, display_name, membership_type, member_tier, status
		FROM users
		WHERE id = $1
	`

	var u domain.User
	err := r.pool.QueryRow(ctx, query, userID).Scan(&u.ID, &u.DisplayName, &u.MembershipType, &u.MemberTier, &u.Status)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Ensure returns the user row, creating a personal account with tier on first
// sight. Identities are issued by the external IdP, so the first valid token
// is the signup.
func (r *UserRepository) Ensure(ctx context.Context, userID, tier string) (*domain.User, error) {
	query := `
		INSERT INTO users (id, membership_type, member_tier, status)
		VALUES ($1, 'personal', $2, 'active')
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, userID, tier); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return r.Get(ctx, userID)
}
