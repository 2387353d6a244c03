package verification

import (
	"context"
	"errors"
	"time"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

// AdultMonitoringAge is the age from which a two-tick verified kid moves to
// partial monitoring.
const AdultMonitoringAge = 13

// Ledger owns the two-tick verification state of kid accounts. It is the
// only component that mutates verification fields.
type Ledger struct {
	users storage.UserStore
	codes storage.CodeStore
	now   func() time.Time
}

// NewLedger wires a ledger over the user and code stores.
func NewLedger(users storage.UserStore, codes storage.CodeStore) *Ledger {
	return &Ledger{users: users, codes: codes, now: time.Now}
}

// WithClock replaces the ledger's time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// SetParentVerified links kid to parent and sets the parent tick. Calling it
// again for the same pair is a no-op.
func (l *Ledger) SetParentVerified(ctx context.Context, kidID, parentID string) (models.User, error) {
	parent, err := l.users.FindByID(ctx, parentID)
	if err != nil {
		return models.User{}, lookupErr(err, "parent")
	}
	if parent.UserType != models.UserTypeParent {
		return models.User{}, apperr.Forbidden("only parent accounts can verify children")
	}
	kid, err := l.users.FindByID(ctx, kidID)
	if err != nil {
		return models.User{}, lookupErr(err, "child")
	}
	if kid.UserType != models.UserTypeKid {
		return models.User{}, apperr.Invalid("only kid accounts can be parent verified")
	}

	updated, err := l.users.LinkParent(ctx, kidID, parentID, l.now().UTC())
	switch {
	case errors.Is(err, storage.ErrConflict):
		return models.User{}, apperr.ErrUnauthorized
	case errors.Is(err, storage.ErrNotFound):
		return models.User{}, apperr.NotFound("child")
	case err != nil:
		return models.User{}, err
	}
	return updated, nil
}

// SetSchoolVerified consumes a school code on behalf of kid and sets the
// school tick. It is reached only through a school code claim; the code
// row and the kid row change together or not at all.
func (l *Ledger) SetSchoolVerified(ctx context.Context, kid models.User, code models.SchoolCode) (models.User, error) {
	schoolName := ""
	if school, err := l.users.FindByID(ctx, code.SchoolID); err == nil {
		schoolName = school.Profile.DisplayName
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.User{}, err
	}

	_, updated, err := l.codes.ClaimSchoolCode(ctx, code.ID, kid.ID, schoolName, l.now().UTC())
	switch {
	case errors.Is(err, storage.ErrConflict):
		return models.User{}, apperr.ErrCodeAlreadyClaimed
	case errors.Is(err, storage.ErrNotFound):
		return models.User{}, apperr.ErrCodeNotFound
	case err != nil:
		return models.User{}, err
	}
	return updated, nil
}

// MonitoringLevel derives the level for u at the ledger's current time.
func (l *Ledger) MonitoringLevel(u models.User) models.MonitoringLevel {
	return DeriveMonitoringLevel(u, l.now())
}

func lookupErr(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
