package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

var editableFields = map[string]bool{
	models.FieldDisplayName: true,
	models.FieldAvatar:      true,
	models.FieldSchool:      true,
	models.FieldGrade:       true,
}

// RequestProfileChange records a kid's proposed profile edit. Only fields
// that differ from the live profile are kept. For a full-level kid the
// request waits for the linked parent; for a partial-level kid it is
// stored approved and merged straight away.
func (g *Gate) RequestProfileChange(ctx context.Context, kid models.User, changes map[string]string) (models.ProfileChangeRequest, error) {
	if err := requireAuthor(kid); err != nil {
		return models.ProfileChangeRequest{}, err
	}
	current := models.ProfileFields(kid.Profile)
	effective := make(map[string]string)
	for field, value := range changes {
		if !editableFields[field] {
			return models.ProfileChangeRequest{}, apperr.Invalid("field " + field + " cannot be changed")
		}
		value = strings.TrimSpace(value)
		if field == models.FieldDisplayName && value == "" {
			return models.ProfileChangeRequest{}, apperr.Invalid("display name cannot be empty")
		}
		if current[field] != value {
			effective[field] = value
		}
	}
	if len(effective) == 0 {
		return models.ProfileChangeRequest{}, apperr.Invalid("no changes detected")
	}

	if _, err := g.changes.FindPendingProfileChange(ctx, kid.ID); err == nil {
		return models.ProfileChangeRequest{}, apperr.Invalid("a profile change request is already pending")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.ProfileChangeRequest{}, err
	}

	now := g.now().UTC()
	req := models.ProfileChangeRequest{
		KidID:            kid.ID,
		RequestedChanges: effective,
		CurrentProfile:   current,
		Status:           models.RequestPending,
		CreatedAt:        now,
	}
	if g.level(kid) == models.MonitoringFull {
		if kid.ParentAccountID == nil {
			return models.ProfileChangeRequest{}, apperr.Invalid("a linked parent is required to review profile changes")
		}
	} else {
		req.Status = models.RequestApproved
		req.ReviewedAt = &now
	}

	saved, err := g.changes.CreateProfileChange(ctx, req)
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		return models.ProfileChangeRequest{}, apperr.Invalid("a profile change request is already pending")
	case err != nil:
		return models.ProfileChangeRequest{}, fmt.Errorf("create profile change: %w", err)
	}
	g.metrics.Moderated("profile_change", string(saved.Status))
	return saved, nil
}

// ApplyProfileChange approves a pending request and merges it into the
// kid's profile. A request that stopped being pending between the check
// and the write reports ProfileChangeConflict.
func (g *Gate) ApplyProfileChange(ctx context.Context, id string, approver models.User) (models.ProfileChangeRequest, models.User, error) {
	req, err := g.pendingChange(ctx, id, approver)
	if err != nil {
		return models.ProfileChangeRequest{}, models.User{}, err
	}
	updated, kid, err := g.changes.ApplyProfileChange(ctx, req.ID, storage.Moderation{
		ModeratorID: approver.ID,
		At:          g.now().UTC(),
	})
	switch {
	case errors.Is(err, storage.ErrConflict):
		return models.ProfileChangeRequest{}, models.User{}, apperr.ErrProfileChangeConflict
	case err != nil:
		return models.ProfileChangeRequest{}, models.User{}, fmt.Errorf("apply profile change: %w", err)
	}
	g.metrics.Moderated("profile_change", string(updated.Status))
	return updated, kid, nil
}

// RejectProfileChange rejects a pending request without touching the profile.
func (g *Gate) RejectProfileChange(ctx context.Context, id string, approver models.User, reason *string) (models.ProfileChangeRequest, error) {
	req, err := g.pendingChange(ctx, id, approver)
	if err != nil {
		return models.ProfileChangeRequest{}, err
	}
	updated, err := g.changes.RejectProfileChange(ctx, req.ID, storage.Moderation{
		ModeratorID: approver.ID,
		At:          g.now().UTC(),
		Reason:      optionalReason(reason),
	})
	switch {
	case errors.Is(err, storage.ErrConflict):
		return models.ProfileChangeRequest{}, apperr.ErrNotPending
	case err != nil:
		return models.ProfileChangeRequest{}, fmt.Errorf("reject profile change: %w", err)
	}
	g.metrics.Moderated("profile_change", string(updated.Status))
	return updated, nil
}

func (g *Gate) pendingChange(ctx context.Context, id string, approver models.User) (models.ProfileChangeRequest, error) {
	req, err := g.changes.GetProfileChange(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ProfileChangeRequest{}, apperr.NotFound("profile change request")
		}
		return models.ProfileChangeRequest{}, err
	}
	if req.Status != models.RequestPending {
		return models.ProfileChangeRequest{}, apperr.ErrNotPending
	}
	if err := g.authorizeApprover(ctx, approver, req.KidID); err != nil {
		return models.ProfileChangeRequest{}, err
	}
	return req, nil
}

// PendingProfileChanges is the parent's profile change review queue.
func (g *Gate) PendingProfileChanges(ctx context.Context, parent models.User) ([]models.ProfileChangeRequest, error) {
	ids, err := g.childIDs(ctx, parent)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.ProfileChangeRequest{}, nil
	}
	return g.changes.ListProfileChanges(ctx, storage.ProfileChangeFilter{KidIDs: ids, Status: models.RequestPending})
}
