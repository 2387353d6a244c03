package codes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
	"github.com/hongminglow/nova-be/internal/storage/memory"
	"github.com/hongminglow/nova-be/internal/verification"
)

type fixture struct {
	store  *memory.Store
	issuer *Issuer
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		now:   time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	ledger := verification.NewLedger(f.store, f.store).WithClock(clock)
	f.issuer = NewIssuer(f.store, f.store, f.store, ledger, nil, Config{}).WithClock(clock)
	return f
}

func (f *fixture) user(t *testing.T, name string, typ models.UserType) models.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), models.User{
		Email:    name + "@example.com",
		UserType: typ,
		Profile:  models.Profile{DisplayName: name},
		IsActive: true,
	})
	require.NoError(t, err)
	return u
}

// sequence yields the given codes in order, repeating the last one.
func sequence(values ...string) func(int) (string, error) {
	var mu sync.Mutex
	idx := 0
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[idx]
		if idx < len(values)-1 {
			idx++
		}
		return v, nil
	}
}

func TestIssueFriendCodeIsIdempotentWithinValidity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "ada", models.UserTypeKid)

	first, err := f.issuer.IssueFriendCode(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, first.Code, FriendCodeLength)
	require.Equal(t, f.now.Add(DefaultFriendCodeTTL), first.ExpiresAt)

	f.now = f.now.Add(200 * 24 * time.Hour)
	second, err := f.issuer.IssueFriendCode(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, first.Code, second.Code)
}

func TestIssueFriendCodeReplacesExpiredCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.issuer.WithGenerator(sequence("AAAAAAAA", "BBBBBBBB"))
	owner := f.user(t, "ada", models.UserTypeKid)

	first, err := f.issuer.IssueFriendCode(ctx, owner.ID)
	require.NoError(t, err)

	f.now = first.ExpiresAt
	second, err := f.issuer.IssueFriendCode(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, "BBBBBBBB", second.Code)
}

// staleOwnerReads hides the owner's current code, as a reader racing a
// concurrent insert would see it.
type staleOwnerReads struct {
	*memory.Store
}

func (staleOwnerReads) FindFriendCodeByOwner(context.Context, string) (models.FriendCode, error) {
	return models.FriendCode{}, storage.ErrNotFound
}

func TestIssueFriendCodeKeepsLiveCodeWhenIssuesRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	clock := func() time.Time { return f.now }
	ledger := verification.NewLedger(f.store, f.store).WithClock(clock)
	racing := NewIssuer(f.store, staleOwnerReads{f.store}, f.store, ledger, nil, Config{}).WithClock(clock)
	owner := f.user(t, "ada", models.UserTypeKid)

	racing.WithGenerator(sequence("AAAAAAAA"))
	first, err := racing.IssueFriendCode(ctx, owner.ID)
	require.NoError(t, err)

	racing.WithGenerator(sequence("BBBBBBBB"))
	second, err := racing.IssueFriendCode(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, first.Code, second.Code)

	stored, err := f.store.FindFriendCode(ctx, first.Code)
	require.NoError(t, err)
	require.Equal(t, owner.ID, stored.OwnerID)
	_, err = f.store.FindFriendCode(ctx, "BBBBBBBB")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIssueFriendCodeRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "ada", models.UserTypeKid)
	b := f.user(t, "bob", models.UserTypeKid)

	f.issuer.WithGenerator(sequence("AAAAAAAA"))
	_, err := f.issuer.IssueFriendCode(ctx, a.ID)
	require.NoError(t, err)

	f.issuer.WithGenerator(sequence("AAAAAAAA", "AAAAAAAA", "CCCCCCCC"))
	code, err := f.issuer.IssueFriendCode(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "CCCCCCCC", code.Code)
}

func TestIssueFriendCodeExhaustsAttemptBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "ada", models.UserTypeKid)
	b := f.user(t, "bob", models.UserTypeKid)

	calls := 0
	f.issuer.WithGenerator(func(int) (string, error) {
		calls++
		return "AAAAAAAA", nil
	})
	_, err := f.issuer.IssueFriendCode(ctx, a.ID)
	require.NoError(t, err)

	calls = 0
	_, err = f.issuer.IssueFriendCode(ctx, b.ID)
	require.ErrorIs(t, err, apperr.ErrCodeGenerationExhausted)
	require.Equal(t, MaxAttempts, calls)
}

func TestIssueFriendCodePropagatesGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("entropy unavailable")
	f.issuer.WithGenerator(func(int) (string, error) { return "", boom })

	_, err := f.issuer.IssueFriendCode(context.Background(), f.user(t, "ada", models.UserTypeKid).ID)
	require.ErrorIs(t, err, boom)
}

func TestClaimFriendCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "ada", models.UserTypeKid)
	friend := f.user(t, "bob", models.UserTypeKid)
	other := f.user(t, "cy", models.UserTypeKid)

	f.issuer.WithGenerator(sequence("HJKMNPQR"))
	_, err := f.issuer.IssueFriendCode(ctx, owner.ID)
	require.NoError(t, err)

	_, err = f.issuer.ClaimFriendCode(ctx, "ZZZZZZZZ", friend.ID)
	require.ErrorIs(t, err, apperr.ErrCodeNotFound)

	_, err = f.issuer.ClaimFriendCode(ctx, "hjkmnpqr", owner.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	ownerID, err := f.issuer.ClaimFriendCode(ctx, " hjkmnpqr ", friend.ID)
	require.NoError(t, err)
	require.Equal(t, owner.ID, ownerID)

	// Friend codes are standing invitations.
	_, err = f.issuer.ClaimFriendCode(ctx, "HJKMNPQR", other.ID)
	require.NoError(t, err)

	ok, err := f.store.AreFriends(ctx, friend.ID, owner.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ids, err := f.store.ListFriendIDs(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	f.now = f.now.Add(DefaultFriendCodeTTL)
	_, err = f.issuer.ClaimFriendCode(ctx, "HJKMNPQR", friend.ID)
	require.ErrorIs(t, err, apperr.ErrCodeExpired)
}

func TestSchoolCodeClaimScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	school := f.user(t, "Maple Primary", models.UserTypeSchool)
	k1 := f.user(t, "kim", models.UserTypeKid)
	k2 := f.user(t, "lee", models.UserTypeKid)

	f.issuer.WithGenerator(sequence("AB3X7Q"))
	code, err := f.issuer.IssueSchoolCode(ctx, school.ID, "5", school.ID)
	require.NoError(t, err)
	require.Equal(t, "AB3X7Q", code.Code)
	require.Equal(t, f.now.Add(30*24*time.Hour), code.ExpiresAt)

	f.now = f.now.Add(29 * 24 * time.Hour)
	schoolID, err := f.issuer.ClaimSchoolCode(ctx, "ab3x7q", k1.ID)
	require.NoError(t, err)
	require.Equal(t, school.ID, schoolID)

	kid, err := f.store.FindByID(ctx, k1.ID)
	require.NoError(t, err)
	require.True(t, kid.Verification.SchoolVerified)
	require.Equal(t, school.ID, *kid.SchoolAccountID)
	require.Equal(t, "Maple Primary", kid.Profile.School)
	require.Equal(t, "5", kid.Profile.Grade)

	_, err = f.issuer.ClaimSchoolCode(ctx, "AB3X7Q", k2.ID)
	require.ErrorIs(t, err, apperr.ErrCodeAlreadyClaimed)
}

func TestSchoolCodeExpiresAfterThirtyDays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	school := f.user(t, "Maple Primary", models.UserTypeSchool)
	kid := f.user(t, "kim", models.UserTypeKid)

	code, err := f.issuer.IssueSchoolCode(ctx, school.ID, "3", school.ID)
	require.NoError(t, err)

	f.now = code.ExpiresAt
	_, err = f.issuer.ClaimSchoolCode(ctx, code.Code, kid.ID)
	require.ErrorIs(t, err, apperr.ErrCodeExpired)
}

func TestSchoolCodeRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	school := f.user(t, "Maple Primary", models.UserTypeSchool)
	parent := f.user(t, "pat", models.UserTypeParent)

	_, err := f.issuer.IssueSchoolCode(ctx, parent.ID, "5", parent.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.issuer.IssueSchoolCode(ctx, school.ID, "", school.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	code, err := f.issuer.IssueSchoolCode(ctx, school.ID, "5", school.ID)
	require.NoError(t, err)
	_, err = f.issuer.ClaimSchoolCode(ctx, code.Code, parent.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSchoolCodeValueMayBeReusedOnceClaimed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	school := f.user(t, "Maple Primary", models.UserTypeSchool)
	kid := f.user(t, "kim", models.UserTypeKid)

	f.issuer.WithGenerator(sequence("AB3X7Q"))
	_, err := f.issuer.IssueSchoolCode(ctx, school.ID, "5", school.ID)
	require.NoError(t, err)

	_, err = f.issuer.IssueSchoolCode(ctx, school.ID, "5", school.ID)
	require.ErrorIs(t, err, apperr.ErrCodeGenerationExhausted)

	_, err = f.issuer.ClaimSchoolCode(ctx, "AB3X7Q", kid.ID)
	require.NoError(t, err)

	reissued, err := f.issuer.IssueSchoolCode(ctx, school.ID, "6", school.ID)
	require.NoError(t, err)
	require.Equal(t, "AB3X7Q", reissued.Code)
	require.Nil(t, reissued.UsedByID)
}

func TestConcurrentSchoolCodeClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	school := f.user(t, "Maple Primary", models.UserTypeSchool)
	code, err := f.issuer.IssueSchoolCode(ctx, school.ID, "5", school.ID)
	require.NoError(t, err)

	const claimants = 16
	kids := make([]models.User, claimants)
	for i := range kids {
		kids[i] = f.user(t, fmt.Sprintf("kid%d", i), models.UserTypeKid)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		losses  int
		unknown []error
	)
	for _, kid := range kids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.issuer.ClaimSchoolCode(ctx, code.Code, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperr.ErrCodeAlreadyClaimed):
				losses++
			default:
				unknown = append(unknown, err)
			}
		}(kid.ID)
	}
	wg.Wait()

	require.Empty(t, unknown)
	require.Equal(t, 1, wins)
	require.Equal(t, claimants-1, losses)
}
