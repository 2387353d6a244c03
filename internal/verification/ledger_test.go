package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage/memory"
)

func seedUser(t *testing.T, store *memory.Store, email string, typ models.UserType) models.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), models.User{Email: email, UserType: typ, IsActive: true})
	require.NoError(t, err)
	return u
}

func TestSetParentVerifiedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := NewLedger(store, store).WithClock(func() time.Time { return refNow })

	kid := seedUser(t, store, "kid@example.com", models.UserTypeKid)
	parent := seedUser(t, store, "parent@example.com", models.UserTypeParent)

	first, err := ledger.SetParentVerified(ctx, kid.ID, parent.ID)
	require.NoError(t, err)
	require.True(t, first.Verification.ParentVerified)
	require.Equal(t, parent.ID, *first.ParentAccountID)

	second, err := ledger.SetParentVerified(ctx, kid.ID, parent.ID)
	require.NoError(t, err)
	require.Equal(t, first.Verification, second.Verification)
}

func TestSetParentVerifiedRejectsSecondParent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := NewLedger(store, store)

	kid := seedUser(t, store, "kid@example.com", models.UserTypeKid)
	p1 := seedUser(t, store, "p1@example.com", models.UserTypeParent)
	p2 := seedUser(t, store, "p2@example.com", models.UserTypeParent)

	_, err := ledger.SetParentVerified(ctx, kid.ID, p1.ID)
	require.NoError(t, err)
	_, err = ledger.SetParentVerified(ctx, kid.ID, p2.ID)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestSetParentVerifiedRequiresParentAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := NewLedger(store, store)

	kid := seedUser(t, store, "kid@example.com", models.UserTypeKid)
	school := seedUser(t, store, "school@example.com", models.UserTypeSchool)

	_, err := ledger.SetParentVerified(ctx, kid.ID, school.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = ledger.SetParentVerified(ctx, "missing", seedUser(t, store, "p@example.com", models.UserTypeParent).ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
