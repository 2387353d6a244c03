package models

import "time"

// PostStatus is the moderation state of a post.
type PostStatus string

const (
	PostPending  PostStatus = "pending"
	PostApproved PostStatus = "approved"
	PostRejected PostStatus = "rejected"
	PostArchived PostStatus = "archived"
)

// Post is a kid-authored feed item.
type Post struct {
	ID                string     `json:"id"`
	AuthorID          string     `json:"authorId"`
	Content           string     `json:"content"`
	ImageRef          *string    `json:"imageRef,omitempty"`
	Status            PostStatus `json:"status"`
	ModeratedByID     *string    `json:"moderatedBy,omitempty"`
	ModeratedAt       *time.Time `json:"moderatedAt,omitempty"`
	RejectionReason   *string    `json:"rejectionReason,omitempty"`
	Likes             []string   `json:"likes"`
	CommentIDs        []string   `json:"comments"`
	VisibleToChildren bool       `json:"visibleToChildren"`
	VisibleToAdults   bool       `json:"visibleToAdults"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Comment is a kid's reply on an approved post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageStatus is the moderation state of a direct message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
	MessageRejected  MessageStatus = "rejected"
)

// Message is a direct message between two kids.
type Message struct {
	ID              string        `json:"id"`
	SenderID        string        `json:"senderId"`
	ReceiverID      string        `json:"receiverId"`
	Content         string        `json:"content"`
	Status          MessageStatus `json:"status"`
	Flagged         bool          `json:"flagged"`
	FlagReason      *string       `json:"flagReason,omitempty"`
	ModeratedByID   *string       `json:"moderatedBy,omitempty"`
	ModeratedAt     *time.Time    `json:"moderatedAt,omitempty"`
	RejectionReason *string       `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// RequestStatus is the review state of a profile change request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Profile fields a kid may ask to change.
const (
	FieldDisplayName = "displayName"
	FieldAvatar      = "avatar"
	FieldSchool      = "school"
	FieldGrade       = "grade"
)

// ProfileChangeRequest holds a kid's proposed profile edit until reviewed.
type ProfileChangeRequest struct {
	ID               string            `json:"id"`
	KidID            string            `json:"kidId"`
	RequestedChanges map[string]string `json:"requestedChanges"`
	CurrentProfile   map[string]string `json:"currentProfile"`
	Status           RequestStatus     `json:"status"`
	ReviewedByID     *string           `json:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time        `json:"reviewedAt,omitempty"`
	Reason           *string           `json:"reason,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// ProfileFields returns the editable fields of p keyed by request field name.
func ProfileFields(p Profile) map[string]string {
	return map[string]string{
		FieldDisplayName: p.DisplayName,
		FieldAvatar:      p.Avatar,
		FieldSchool:      p.School,
		FieldGrade:       p.Grade,
	}
}

// ApplyProfileChanges merges changes into p and returns the result.
// Unknown keys are ignored.
func ApplyProfileChanges(p Profile, changes map[string]string) Profile {
	for field, value := range changes {
		switch field {
		case FieldDisplayName:
			p.DisplayName = value
		case FieldAvatar:
			p.Avatar = value
		case FieldSchool:
			p.School = value
		case FieldGrade:
			p.Grade = value
		}
	}
	return p
}
