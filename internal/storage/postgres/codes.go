package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

const friendCodeColumns = `id, owner_id, code, expires_at, created_at`

const schoolCodeColumns = `id, code, school_id, grade_level, generated_by, expires_at, used_by, used_at, created_at`

func scanFriendCode(row pgx.Row) (models.FriendCode, error) {
	var c models.FriendCode
	err := row.Scan(&c.ID, &c.OwnerID, &c.Code, &c.ExpiresAt, &c.CreatedAt)
	return c, err
}

func scanSchoolCode(row pgx.Row) (models.SchoolCode, error) {
	var c models.SchoolCode
	err := row.Scan(&c.ID, &c.Code, &c.SchoolID, &c.GradeLevel, &c.GeneratedByID, &c.ExpiresAt, &c.UsedByID, &c.UsedAt, &c.CreatedAt)
	return c, err
}

func (s *Store) FindFriendCodeByOwner(ctx context.Context, ownerID string) (models.FriendCode, error) {
	c, err := scanFriendCode(s.pool.QueryRow(ctx, `SELECT `+friendCodeColumns+` FROM friend_codes WHERE owner_id = $1`, ownerID))
	if err != nil {
		return models.FriendCode{}, mapErr(err)
	}
	return c, nil
}

func (s *Store) FindFriendCode(ctx context.Context, code string) (models.FriendCode, error) {
	c, err := scanFriendCode(s.pool.QueryRow(ctx, `SELECT `+friendCodeColumns+` FROM friend_codes WHERE code = $1`, code))
	if err != nil {
		return models.FriendCode{}, mapErr(err)
	}
	return c, nil
}

// SaveFriendCode inserts the owner's code, replacing only a row that has
// expired by code.CreatedAt. When the owner still holds a live code, that
// code is returned unchanged. A code value held by another owner violates
// friend_codes.code and maps to ErrAlreadyExists.
func (s *Store) SaveFriendCode(ctx context.Context, code models.FriendCode) (models.FriendCode, error) {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO friend_codes (id, owner_id, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			id = EXCLUDED.id, code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
		WHERE friend_codes.expires_at <= EXCLUDED.created_at
		RETURNING `+friendCodeColumns,
		code.ID, code.OwnerID, code.Code, code.ExpiresAt, code.CreatedAt)
	saved, err := scanFriendCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// The owner's current code is still live.
		live, err := s.FindFriendCodeByOwner(ctx, code.OwnerID)
		if errors.Is(err, storage.ErrNotFound) {
			return models.FriendCode{}, storage.ErrConflict
		}
		return live, err
	}
	if err != nil {
		return models.FriendCode{}, mapErr(err)
	}
	return saved, nil
}

// CreateSchoolCode inserts a code; the partial unique index on unclaimed
// codes rejects a live duplicate.
func (s *Store) CreateSchoolCode(ctx context.Context, code models.SchoolCode) (models.SchoolCode, error) {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO school_codes (id, code, school_id, grade_level, generated_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+schoolCodeColumns,
		code.ID, code.Code, code.SchoolID, code.GradeLevel, code.GeneratedByID, code.ExpiresAt, code.CreatedAt)
	saved, err := scanSchoolCode(row)
	if err != nil {
		return models.SchoolCode{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) FindSchoolCode(ctx context.Context, code string) (models.SchoolCode, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+schoolCodeColumns+` FROM school_codes
		WHERE code = $1
		ORDER BY (used_by IS NULL) DESC, created_at DESC
		LIMIT 1`, code)
	c, err := scanSchoolCode(row)
	if err != nil {
		return models.SchoolCode{}, mapErr(err)
	}
	return c, nil
}

// ClaimSchoolCode marks the code used and verifies the kid in one
// transaction. The claim is a single conditional write on used_by IS NULL.
func (s *Store) ClaimSchoolCode(ctx context.Context, codeID, claimantID, schoolName string, at time.Time) (models.SchoolCode, models.User, error) {
	var (
		code models.SchoolCode
		kid  models.User
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		code, err = scanSchoolCode(tx.QueryRow(ctx, `
			UPDATE school_codes SET used_by = $2, used_at = $3
			WHERE id = $1 AND used_by IS NULL
			RETURNING `+schoolCodeColumns, codeID, claimantID, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return conflictOrMissing(ctx, tx, "school_codes", codeID)
		}
		if err != nil {
			return err
		}

		kid, err = scanUser(tx.QueryRow(ctx, `
			UPDATE users SET
				school_verified = TRUE,
				school_account_id = $2,
				verified_at = COALESCE(verified_at, $3),
				profile = profile
					|| jsonb_build_object('grade', $4::text)
					|| CASE WHEN $5::text = '' THEN '{}'::jsonb ELSE jsonb_build_object('school', $5::text) END,
				updated_at = $3
			WHERE id = $1
			RETURNING `+userColumns, claimantID, code.SchoolID, at, code.GradeLevel, schoolName))
		return mapErr(err)
	})
	if err != nil {
		return models.SchoolCode{}, models.User{}, err
	}
	return code, kid, nil
}

func (s *Store) ListSchoolCodes(ctx context.Context, schoolID string) ([]models.SchoolCode, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+schoolCodeColumns+` FROM school_codes WHERE school_id = $1 ORDER BY created_at DESC`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SchoolCode
	for rows.Next() {
		c, err := scanSchoolCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteExpiredFriendCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM friend_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredSchoolCodes keeps claimed codes as an audit trail.
func (s *Store) DeleteExpiredSchoolCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM school_codes WHERE expires_at <= $1 AND used_by IS NULL`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Friendships

func (s *Store) CreateFriendship(ctx context.Context, a, b string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO friendships (user_id, friend_id, created_at)
		VALUES ($1, $2, $3), ($2, $1, $3)
		ON CONFLICT DO NOTHING`, a, b, at)
	return err
}

func (s *Store) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`, a, b).Scan(&ok)
	return ok, err
}

func (s *Store) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT friend_id FROM friendships WHERE user_id = $1 ORDER BY friend_id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

var _ storage.CodeStore = (*Store)(nil)
