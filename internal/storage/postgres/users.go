package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/nova-be/internal/models"
)

const userColumns = `id, email, password_hash, user_type, profile, parent_verified, school_verified,
	verified_at, parent_account_id, school_account_id, is_active, created_at, updated_at`

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	profile, err := json.Marshal(user.Profile)
	if err != nil {
		return models.User{}, fmt.Errorf("encode profile: %w", err)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, user_type, profile, parent_verified, school_verified,
			verified_at, parent_account_id, school_account_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING `+userColumns,
		user.ID, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash, string(user.UserType), profile,
		user.Verification.ParentVerified, user.Verification.SchoolVerified, user.Verification.VerifiedAt,
		user.ParentAccountID, user.SchoolAccountID, user.IsActive, user.CreatedAt,
	)
	created, err := scanUser(row)
	if err != nil {
		return models.User{}, mapErr(err)
	}
	return created, nil
}

// FindByID fetches a user by ID.
func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	return findUser(ctx, s.pool, id)
}

func findUser(ctx context.Context, q querier, id string) (models.User, error) {
	user, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, mapErr(err)
	}
	return user, nil
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, mapErr(err)
	}
	return user, nil
}

// LinkParent sets the parent tick, conditioned on the kid being unlinked or
// already linked to the same parent.
func (s *Store) LinkParent(ctx context.Context, kidID, parentID string, at time.Time) (models.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET
			parent_verified = TRUE,
			parent_account_id = $2,
			verified_at = COALESCE(verified_at, $3),
			updated_at = CASE WHEN parent_verified THEN updated_at ELSE $3 END
		WHERE id = $1 AND (parent_account_id IS NULL OR parent_account_id = $2)
		RETURNING `+userColumns, kidID, parentID, at)
	user, err := scanUser(row)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, err
	}
	return models.User{}, conflictOrMissing(ctx, s.pool, "users", kidID)
}

// ListChildren returns the kids linked to parentID.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE parent_account_id = $1 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user     models.User
		userType string
		profile  []byte
	)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &userType, &profile,
		&user.Verification.ParentVerified, &user.Verification.SchoolVerified, &user.Verification.VerifiedAt,
		&user.ParentAccountID, &user.SchoolAccountID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	user.UserType = models.UserType(userType)
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &user.Profile); err != nil {
			return models.User{}, fmt.Errorf("decode profile: %w", err)
		}
	}
	return user, nil
}

// mergeProfile applies changes to the kid's profile JSON.
func mergeProfile(ctx context.Context, q querier, kidID string, changes map[string]string, at time.Time) (models.User, error) {
	patch, err := json.Marshal(changes)
	if err != nil {
		return models.User{}, fmt.Errorf("encode profile changes: %w", err)
	}
	row := q.QueryRow(ctx, `
		UPDATE users SET profile = profile || $2::jsonb, updated_at = $3
		WHERE id = $1
		RETURNING `+userColumns, kidID, patch, at)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, mapErr(err)
	}
	return user, nil
}
