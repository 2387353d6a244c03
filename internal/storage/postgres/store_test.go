package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

// newIntegrationStore connects to DATABASE_URL. Each test works on freshly
// created rows so runs against a shared database do not interfere.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("RUN_STORE_INTEGRATION") != "true" {
		t.Skip("set RUN_STORE_INTEGRATION=true to run postgres store tests")
	}
	for _, path := range []string{".env", "../.env", "../../.env", "../../../.env"} {
		_ = godotenv.Overload(path)
	}
	dbURL := os.Getenv("DATABASE_URL")
	require.NotEmpty(t, dbURL, "DATABASE_URL is required")

	store, err := New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func createUser(t *testing.T, s *Store, typ models.UserType) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), models.User{
		Email:        fmt.Sprintf("%s_%d@example.com", typ, time.Now().UnixNano()),
		PasswordHash: "x",
		UserType:     typ,
		Profile:      models.Profile{DisplayName: string(typ)},
		IsActive:     true,
	})
	require.NoError(t, err)
	return u
}

func TestUsersAndParentLink(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	parent := createUser(t, s, models.UserTypeParent)
	other := createUser(t, s, models.UserTypeParent)
	kid := createUser(t, s, models.UserTypeKid)

	_, err := s.CreateUser(ctx, models.User{Email: kid.Email, PasswordHash: "x", UserType: models.UserTypeKid})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	byEmail, err := s.FindByEmail(ctx, kid.Email)
	require.NoError(t, err)
	require.Equal(t, kid.ID, byEmail.ID)

	now := time.Now().UTC()
	linked, err := s.LinkParent(ctx, kid.ID, parent.ID, now)
	require.NoError(t, err)
	require.True(t, linked.Verification.ParentVerified)
	require.Equal(t, parent.ID, *linked.ParentAccountID)

	_, err = s.LinkParent(ctx, kid.ID, other.ID, now)
	require.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.LinkParent(ctx, "missing", parent.ID, now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	children, err := s.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestSaveFriendCodeReplacesOnlyExpiredCode(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	owner := createUser(t, s, models.UserTypeKid)
	now := time.Now().UTC().Truncate(time.Microsecond)
	value := func() string { return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]) }

	first, err := s.SaveFriendCode(ctx, models.FriendCode{OwnerID: owner.ID, Code: value(), ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	require.NoError(t, err)

	kept, err := s.SaveFriendCode(ctx, models.FriendCode{OwnerID: owner.ID, Code: value(), ExpiresAt: now.Add(2 * time.Hour), CreatedAt: now})
	require.NoError(t, err)
	require.Equal(t, first.Code, kept.Code)

	later := now.Add(time.Hour)
	replaced, err := s.SaveFriendCode(ctx, models.FriendCode{OwnerID: owner.ID, Code: value(), ExpiresAt: later.Add(time.Hour), CreatedAt: later})
	require.NoError(t, err)
	require.NotEqual(t, first.Code, replaced.Code)

	_, err = s.FindFriendCode(ctx, first.Code)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSchoolCodeClaimIsSingleWinner(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	school := createUser(t, s, models.UserTypeSchool)
	now := time.Now().UTC()
	code, err := s.CreateSchoolCode(ctx, models.SchoolCode{
		Code:          fmt.Sprintf("T%05d", now.UnixNano()%100000),
		SchoolID:      school.ID,
		GradeLevel:    "5",
		GeneratedByID: school.ID,
		ExpiresAt:     now.Add(time.Hour),
		CreatedAt:     now,
	})
	require.NoError(t, err)

	kids := make([]models.User, 8)
	for i := range kids {
		kids[i] = createUser(t, s, models.UserTypeKid)
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for _, kid := range kids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _, err := s.ClaimSchoolCode(ctx, code.ID, id, "Hillside", now)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, storage.ErrConflict)
		}(kid.ID)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())

	claimed, err := s.FindSchoolCode(ctx, code.Code)
	require.NoError(t, err)
	require.True(t, claimed.Claimed())

	winner, err := s.FindByID(ctx, *claimed.UsedByID)
	require.NoError(t, err)
	require.True(t, winner.Verification.SchoolVerified)
	require.Equal(t, "5", winner.Profile.Grade)
	require.Equal(t, "Hillside", winner.Profile.School)
}

func TestPostModerationAndLikes(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	parent := createUser(t, s, models.UserTypeParent)
	kid := createUser(t, s, models.UserTypeKid)
	now := time.Now().UTC()

	post, err := s.CreatePost(ctx, models.Post{
		AuthorID: kid.ID, Content: "hello", Status: models.PostPending,
		VisibleToChildren: true, VisibleToAdults: true, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.Empty(t, post.Likes)

	approved, err := s.ModeratePost(ctx, post.ID, models.PostApproved, storage.Moderation{ModeratorID: parent.ID, At: now})
	require.NoError(t, err)
	require.Equal(t, models.PostApproved, approved.Status)

	_, err = s.ModeratePost(ctx, post.ID, models.PostRejected, storage.Moderation{ModeratorID: parent.ID, At: now})
	require.ErrorIs(t, err, storage.ErrConflict)

	liked, err := s.AddLike(ctx, post.ID, parent.ID)
	require.NoError(t, err)
	liked, err = s.AddLike(ctx, post.ID, parent.ID)
	require.NoError(t, err)
	require.Equal(t, []string{parent.ID}, liked.Likes)

	posts, err := s.ListPosts(ctx, storage.PostFilter{AuthorIDs: []string{kid.ID}, Status: models.PostApproved, Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
}

func TestProfileChangeApply(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	parent := createUser(t, s, models.UserTypeParent)
	kid := createUser(t, s, models.UserTypeKid)
	now := time.Now().UTC()

	req, err := s.CreateProfileChange(ctx, models.ProfileChangeRequest{
		KidID:            kid.ID,
		RequestedChanges: map[string]string{models.FieldDisplayName: "Star"},
		CurrentProfile:   models.ProfileFields(kid.Profile),
		Status:           models.RequestPending,
		CreatedAt:        now,
	})
	require.NoError(t, err)

	_, err = s.CreateProfileChange(ctx, models.ProfileChangeRequest{
		KidID:            kid.ID,
		RequestedChanges: map[string]string{models.FieldAvatar: "a.png"},
		CurrentProfile:   models.ProfileFields(kid.Profile),
		Status:           models.RequestPending,
		CreatedAt:        now,
	})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	applied, updated, err := s.ApplyProfileChange(ctx, req.ID, storage.Moderation{ModeratorID: parent.ID, At: now})
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, applied.Status)
	require.Equal(t, "Star", updated.Profile.DisplayName)

	_, err = s.RejectProfileChange(ctx, req.ID, storage.Moderation{ModeratorID: parent.ID, At: now})
	require.ErrorIs(t, err, storage.ErrConflict)

	n, err := s.DeleteReviewedProfileChangesBefore(ctx, now.Add(time.Second))
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(1))
}
