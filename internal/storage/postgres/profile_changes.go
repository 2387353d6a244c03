package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

const profileChangeColumns = `id, kid_id, requested_changes, current_profile, status, reviewed_by, reviewed_at, reason, created_at`

func scanProfileChange(row pgx.Row) (models.ProfileChangeRequest, error) {
	var (
		req       models.ProfileChangeRequest
		requested []byte
		current   []byte
		status    string
	)
	if err := row.Scan(&req.ID, &req.KidID, &requested, &current, &status,
		&req.ReviewedByID, &req.ReviewedAt, &req.Reason, &req.CreatedAt); err != nil {
		return models.ProfileChangeRequest{}, err
	}
	req.Status = models.RequestStatus(status)
	if err := json.Unmarshal(requested, &req.RequestedChanges); err != nil {
		return models.ProfileChangeRequest{}, fmt.Errorf("decode requested changes: %w", err)
	}
	if err := json.Unmarshal(current, &req.CurrentProfile); err != nil {
		return models.ProfileChangeRequest{}, fmt.Errorf("decode current profile: %w", err)
	}
	return req, nil
}

// CreateProfileChange stores the request. Approved requests are merged into
// the kid's profile in the same transaction; a second pending request for
// the same kid hits the partial unique index and maps to ErrAlreadyExists.
func (s *Store) CreateProfileChange(ctx context.Context, req models.ProfileChangeRequest) (models.ProfileChangeRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	requested, err := json.Marshal(req.RequestedChanges)
	if err != nil {
		return models.ProfileChangeRequest{}, fmt.Errorf("encode requested changes: %w", err)
	}
	current, err := json.Marshal(req.CurrentProfile)
	if err != nil {
		return models.ProfileChangeRequest{}, fmt.Errorf("encode current profile: %w", err)
	}

	var saved models.ProfileChangeRequest
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := findUser(ctx, tx, req.KidID); err != nil {
			return err
		}
		saved, err = scanProfileChange(tx.QueryRow(ctx, `
			INSERT INTO profile_change_requests (id, kid_id, requested_changes, current_profile, status,
				reviewed_by, reviewed_at, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+profileChangeColumns,
			req.ID, req.KidID, requested, current, string(req.Status),
			req.ReviewedByID, req.ReviewedAt, req.Reason, req.CreatedAt))
		if err != nil {
			return mapErr(err)
		}
		if saved.Status != models.RequestApproved {
			return nil
		}
		at := saved.CreatedAt
		if saved.ReviewedAt != nil {
			at = *saved.ReviewedAt
		}
		_, err = mergeProfile(ctx, tx, saved.KidID, saved.RequestedChanges, at)
		return err
	})
	if err != nil {
		return models.ProfileChangeRequest{}, err
	}
	return saved, nil
}

func (s *Store) GetProfileChange(ctx context.Context, id string) (models.ProfileChangeRequest, error) {
	req, err := scanProfileChange(s.pool.QueryRow(ctx, `SELECT `+profileChangeColumns+` FROM profile_change_requests WHERE id = $1`, id))
	if err != nil {
		return models.ProfileChangeRequest{}, mapErr(err)
	}
	return req, nil
}

func (s *Store) FindPendingProfileChange(ctx context.Context, kidID string) (models.ProfileChangeRequest, error) {
	req, err := scanProfileChange(s.pool.QueryRow(ctx, `
		SELECT `+profileChangeColumns+` FROM profile_change_requests
		WHERE kid_id = $1 AND status = 'pending'`, kidID))
	if err != nil {
		return models.ProfileChangeRequest{}, mapErr(err)
	}
	return req, nil
}

func (s *Store) ListProfileChanges(ctx context.Context, filter storage.ProfileChangeFilter) ([]models.ProfileChangeRequest, error) {
	var w where
	if filter.KidIDs != nil {
		w.add("kid_id = ANY(?)", filter.KidIDs)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	rows, err := s.pool.Query(ctx, `SELECT `+profileChangeColumns+` FROM profile_change_requests`+w.sql()+` ORDER BY created_at`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProfileChangeRequest
	for rows.Next() {
		req, err := scanProfileChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *Store) RejectProfileChange(ctx context.Context, id string, m storage.Moderation) (models.ProfileChangeRequest, error) {
	req, err := reviewProfileChange(ctx, s.pool, id, models.RequestRejected, m)
	if err != nil {
		return models.ProfileChangeRequest{}, err
	}
	return req, nil
}

// ApplyProfileChange approves a pending request and merges its changes in
// one transaction.
func (s *Store) ApplyProfileChange(ctx context.Context, id string, m storage.Moderation) (models.ProfileChangeRequest, models.User, error) {
	var (
		req models.ProfileChangeRequest
		kid models.User
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		req, err = reviewProfileChange(ctx, tx, id, models.RequestApproved, m)
		if err != nil {
			return err
		}
		kid, err = mergeProfile(ctx, tx, req.KidID, req.RequestedChanges, m.At)
		return err
	})
	if err != nil {
		return models.ProfileChangeRequest{}, models.User{}, err
	}
	return req, kid, nil
}

func reviewProfileChange(ctx context.Context, q querier, id string, status models.RequestStatus, m storage.Moderation) (models.ProfileChangeRequest, error) {
	req, err := scanProfileChange(q.QueryRow(ctx, `
		UPDATE profile_change_requests SET status = $2, reviewed_by = $3, reviewed_at = $4, reason = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+profileChangeColumns, id, string(status), m.ModeratorID, m.At, m.Reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ProfileChangeRequest{}, conflictOrMissing(ctx, q, "profile_change_requests", id)
	}
	if err != nil {
		return models.ProfileChangeRequest{}, err
	}
	return req, nil
}

// DeleteReviewedProfileChangesBefore drops approved requests reviewed
// before cutoff. Rejections stay for the parent's audit trail.
func (s *Store) DeleteReviewedProfileChangesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM profile_change_requests
		WHERE status = 'approved' AND reviewed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
