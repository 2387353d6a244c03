package codes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/metrics"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

const (
	DefaultFriendCodeTTL = 365 * 24 * time.Hour
	DefaultSchoolCodeTTL = 30 * 24 * time.Hour
)

// SchoolVerifier applies the school tick when a school code is redeemed.
type SchoolVerifier interface {
	SetSchoolVerified(ctx context.Context, kid models.User, code models.SchoolCode) (models.User, error)
}

// Config tunes code lifetimes.
type Config struct {
	FriendCodeTTL time.Duration
	SchoolCodeTTL time.Duration
}

// Issuer generates and redeems friend and school codes.
type Issuer struct {
	users       storage.UserStore
	codes       storage.CodeStore
	friendships storage.FriendshipStore
	verifier    SchoolVerifier
	metrics     *metrics.Metrics
	cfg         Config

	now      func() time.Time
	generate func(length int) (string, error)
}

// NewIssuer builds an issuer. Zero TTLs fall back to one year for friend
// codes and 30 days for school codes.
func NewIssuer(users storage.UserStore, codes storage.CodeStore, friendships storage.FriendshipStore, verifier SchoolVerifier, m *metrics.Metrics, cfg Config) *Issuer {
	if cfg.FriendCodeTTL <= 0 {
		cfg.FriendCodeTTL = DefaultFriendCodeTTL
	}
	if cfg.SchoolCodeTTL <= 0 {
		cfg.SchoolCodeTTL = DefaultSchoolCodeTTL
	}
	return &Issuer{
		users:       users,
		codes:       codes,
		friendships: friendships,
		verifier:    verifier,
		metrics:     m,
		cfg:         cfg,
		now:         time.Now,
		generate:    Generate,
	}
}

// WithClock replaces the issuer's time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// WithGenerator replaces the random code source.
func (i *Issuer) WithGenerator(gen func(length int) (string, error)) *Issuer {
	i.generate = gen
	return i
}

// IssueFriendCode returns the owner's live code, or creates one.
func (i *Issuer) IssueFriendCode(ctx context.Context, ownerID string) (models.FriendCode, error) {
	now := i.now().UTC()
	existing, err := i.codes.FindFriendCodeByOwner(ctx, ownerID)
	switch {
	case err == nil && !existing.Expired(now):
		return existing, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return models.FriendCode{}, err
	}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		value, err := i.generate(FriendCodeLength)
		if err != nil {
			return models.FriendCode{}, err
		}
		saved, err := i.codes.SaveFriendCode(ctx, models.FriendCode{
			OwnerID:   ownerID,
			Code:      value,
			ExpiresAt: now.Add(i.cfg.FriendCodeTTL),
			CreatedAt: now,
		})
		if errors.Is(err, storage.ErrAlreadyExists) || errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return models.FriendCode{}, fmt.Errorf("save friend code: %w", err)
		}
		// A concurrent issue for the same owner may have won the race.
		if saved.Code == value {
			i.metrics.CodeIssued("friend")
		}
		return saved, nil
	}
	return models.FriendCode{}, apperr.ErrCodeGenerationExhausted
}

// IssueSchoolCode creates a single-use code linking a kid to schoolID at
// grade. issuerID must be a school account.
func (i *Issuer) IssueSchoolCode(ctx context.Context, schoolID, grade, issuerID string) (models.SchoolCode, error) {
	if grade == "" {
		return models.SchoolCode{}, apperr.Invalid("grade is required")
	}
	issuer, err := i.users.FindByID(ctx, issuerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.SchoolCode{}, apperr.NotFound("issuer")
		}
		return models.SchoolCode{}, err
	}
	if issuer.UserType != models.UserTypeSchool {
		return models.SchoolCode{}, apperr.Forbidden("only school accounts can issue school codes")
	}

	now := i.now().UTC()
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		value, err := i.generate(SchoolCodeLength)
		if err != nil {
			return models.SchoolCode{}, err
		}
		saved, err := i.codes.CreateSchoolCode(ctx, models.SchoolCode{
			Code:          value,
			SchoolID:      schoolID,
			GradeLevel:    grade,
			GeneratedByID: issuerID,
			ExpiresAt:     now.Add(i.cfg.SchoolCodeTTL),
			CreatedAt:     now,
		})
		if errors.Is(err, storage.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return models.SchoolCode{}, fmt.Errorf("create school code: %w", err)
		}
		i.metrics.CodeIssued("school")
		return saved, nil
	}
	return models.SchoolCode{}, apperr.ErrCodeGenerationExhausted
}

// ListSchoolCodes returns the codes a school has issued, newest first.
func (i *Issuer) ListSchoolCodes(ctx context.Context, schoolID string) ([]models.SchoolCode, error) {
	return i.codes.ListSchoolCodes(ctx, schoolID)
}

// ClaimFriendCode befriends the code's owner and claimant and returns the
// owner ID. The code stays valid for other claimants.
func (i *Issuer) ClaimFriendCode(ctx context.Context, code, claimantID string) (string, error) {
	fc, err := i.codes.FindFriendCode(ctx, Normalize(code))
	if err != nil {
		i.metrics.CodeClaimed("friend", "not_found")
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperr.ErrCodeNotFound
		}
		return "", err
	}
	if fc.Expired(i.now()) {
		i.metrics.CodeClaimed("friend", "expired")
		return "", apperr.ErrCodeExpired
	}
	if fc.OwnerID == claimantID {
		return "", apperr.Invalid("cannot claim your own friend code")
	}
	if err := i.friendships.CreateFriendship(ctx, fc.OwnerID, claimantID, i.now().UTC()); err != nil {
		return "", fmt.Errorf("create friendship: %w", err)
	}
	i.metrics.CodeClaimed("friend", "ok")
	return fc.OwnerID, nil
}

// Friends returns the users befriended by userID, ordered by ID.
func (i *Issuer) Friends(ctx context.Context, userID string) ([]models.User, error) {
	ids, err := i.friendships.ListFriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		friend, err := i.users.FindByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, friend)
	}
	return out, nil
}

// ClaimSchoolCode redeems a school code for a kid and returns the school ID.
// Exactly one of any number of concurrent claimants succeeds.
func (i *Issuer) ClaimSchoolCode(ctx context.Context, code, claimantID string) (string, error) {
	kid, err := i.users.FindByID(ctx, claimantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperr.NotFound("user")
		}
		return "", err
	}
	if kid.UserType != models.UserTypeKid {
		return "", apperr.Forbidden("only kid accounts can claim school codes")
	}

	sc, err := i.codes.FindSchoolCode(ctx, Normalize(code))
	if err != nil {
		i.metrics.CodeClaimed("school", "not_found")
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperr.ErrCodeNotFound
		}
		return "", err
	}
	if sc.Expired(i.now()) {
		i.metrics.CodeClaimed("school", "expired")
		return "", apperr.ErrCodeExpired
	}
	if sc.Claimed() {
		i.metrics.CodeClaimed("school", "already_claimed")
		return "", apperr.ErrCodeAlreadyClaimed
	}

	if _, err := i.verifier.SetSchoolVerified(ctx, kid, sc); err != nil {
		if errors.Is(err, apperr.ErrCodeAlreadyClaimed) {
			i.metrics.CodeClaimed("school", "already_claimed")
		}
		return "", err
	}
	i.metrics.CodeClaimed("school", "ok")
	return sc.SchoolID, nil
}
