package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hongminglow/nova-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrConflict indicates a conditional update matched zero rows.
var ErrConflict = errors.New("conditional update matched no rows")

// UserStore captures persistence operations on users.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	// LinkParent sets the parent tick and parent_account_id. It fails with
	// ErrConflict if the kid is already linked to a different parent.
	LinkParent(ctx context.Context, kidID, parentID string, at time.Time) (models.User, error)
	ListChildren(ctx context.Context, parentID string) ([]models.User, error)
}

// CodeStore persists friend and school codes.
type CodeStore interface {
	FindFriendCodeByOwner(ctx context.Context, ownerID string) (models.FriendCode, error)
	FindFriendCode(ctx context.Context, code string) (models.FriendCode, error)
	// SaveFriendCode stores the owner's code, replacing only one that has
	// expired by code.CreatedAt; a live code is returned as is.
	// ErrAlreadyExists means the code value is taken by another owner.
	SaveFriendCode(ctx context.Context, code models.FriendCode) (models.FriendCode, error)
	// CreateSchoolCode fails with ErrAlreadyExists if an unclaimed code with
	// the same value exists.
	CreateSchoolCode(ctx context.Context, code models.SchoolCode) (models.SchoolCode, error)
	// FindSchoolCode prefers the unclaimed row when a value was reused.
	FindSchoolCode(ctx context.Context, code string) (models.SchoolCode, error)
	// ClaimSchoolCode marks the code used by claimant and sets the kid's
	// school tick, school account and profile school/grade in one
	// transaction, conditioned on used_by IS NULL. ErrConflict when the
	// condition fails.
	ClaimSchoolCode(ctx context.Context, codeID, claimantID, schoolName string, at time.Time) (models.SchoolCode, models.User, error)
	ListSchoolCodes(ctx context.Context, schoolID string) ([]models.SchoolCode, error)
	DeleteExpiredFriendCodes(ctx context.Context, now time.Time) (int64, error)
	// DeleteExpiredSchoolCodes removes only unclaimed codes.
	DeleteExpiredSchoolCodes(ctx context.Context, now time.Time) (int64, error)
}

// FriendshipStore is the friendship ledger.
type FriendshipStore interface {
	// CreateFriendship is idempotent and symmetric.
	CreateFriendship(ctx context.Context, a, b string, at time.Time) error
	AreFriends(ctx context.Context, a, b string) (bool, error)
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// PostFilter narrows ListPosts. Empty fields match everything.
type PostFilter struct {
	AuthorIDs []string
	Status    models.PostStatus
	Limit     int
}

// Moderation describes a pending -> terminal transition.
type Moderation struct {
	ModeratorID string
	At          time.Time
	Reason      *string
}

// PostStore persists posts, likes and comments.
type PostStore interface {
	CreatePost(ctx context.Context, post models.Post) (models.Post, error)
	GetPost(ctx context.Context, id string) (models.Post, error)
	// ModeratePost moves a pending post to status. ErrConflict if the post
	// was no longer pending.
	ModeratePost(ctx context.Context, id string, status models.PostStatus, m Moderation) (models.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error)
	AddLike(ctx context.Context, postID, userID string) (models.Post, error)
	// AddComment stores comment and appends its ID to the post's comment
	// list in one transaction. ErrNotFound if the post does not exist.
	AddComment(ctx context.Context, comment models.Comment) (models.Comment, error)
	// ListComments returns a post's comments, oldest first.
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	ArchivePostsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageFilter narrows ListMessages.
type MessageFilter struct {
	SenderIDs []string
	// Between restricts to the conversation of the two IDs when both set.
	Between [2]string
	Status  models.MessageStatus
	Limit   int
	// Latest keeps the newest Limit rows instead of the oldest. Results are
	// still ordered oldest first.
	Latest bool
}

// MessageStore persists direct messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	ModerateMessage(ctx context.Context, id string, status models.MessageStatus, m Moderation) (models.Message, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]models.Message, error)
}

// ProfileChangeFilter narrows ListProfileChanges.
type ProfileChangeFilter struct {
	KidIDs []string
	Status models.RequestStatus
}

// ProfileChangeStore persists profile change requests.
type ProfileChangeStore interface {
	// CreateProfileChange stores req; when req.Status is approved the
	// changes are merged into the kid's profile in the same transaction.
	CreateProfileChange(ctx context.Context, req models.ProfileChangeRequest) (models.ProfileChangeRequest, error)
	GetProfileChange(ctx context.Context, id string) (models.ProfileChangeRequest, error)
	FindPendingProfileChange(ctx context.Context, kidID string) (models.ProfileChangeRequest, error)
	ListProfileChanges(ctx context.Context, filter ProfileChangeFilter) ([]models.ProfileChangeRequest, error)
	RejectProfileChange(ctx context.Context, id string, m Moderation) (models.ProfileChangeRequest, error)
	// ApplyProfileChange approves a pending request and merges its changes
	// into the kid's profile atomically. ErrConflict if no longer pending.
	ApplyProfileChange(ctx context.Context, id string, m Moderation) (models.ProfileChangeRequest, models.User, error)
	DeleteReviewedProfileChangesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store aggregates every persistence port the core needs.
type Store interface {
	UserStore
	CodeStore
	FriendshipStore
	PostStore
	MessageStore
	ProfileChangeStore
	Close()
}
