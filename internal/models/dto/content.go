package dto

import "github.com/hongminglow/nova-be/internal/models"

type ParentVerificationRequest struct {
	ChildID string `json:"childId" validate:"required"`
}

type ClaimCodeRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type SchoolCodeRequest struct {
	Grade string `json:"grade" validate:"required,max=20"`
}

type ClaimFriendCodeResponse struct {
	FriendID string `json:"friendId"`
}

type ClaimSchoolCodeResponse struct {
	SchoolID string `json:"schoolId"`
}

type PostRequest struct {
	Content           string  `json:"content" validate:"required"`
	ImageRef          *string `json:"imageRef" validate:"omitempty,max=255"`
	VisibleToChildren *bool   `json:"visibleToChildren"`
	VisibleToAdults   *bool   `json:"visibleToAdults"`
}

type CommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// FriendResponse is the public view of a friend.
type FriendResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
	IsVerified  bool   `json:"isVerified"`
}

// ReviewRequest carries an optional reason for a rejection.
type ReviewRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

type MessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

type ProfileChangeRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,max=50"`
	Avatar      *string `json:"avatar" validate:"omitempty,max=255"`
	School      *string `json:"school" validate:"omitempty,max=100"`
	Grade       *string `json:"grade" validate:"omitempty,max=20"`
}

// Changes flattens the fields that were sent.
func (r ProfileChangeRequest) Changes() map[string]string {
	out := map[string]string{}
	for name, v := range map[string]*string{
		models.FieldDisplayName: r.DisplayName,
		models.FieldAvatar:      r.Avatar,
		models.FieldSchool:      r.School,
		models.FieldGrade:       r.Grade,
	} {
		if v != nil {
			out[name] = *v
		}
	}
	return out
}

type UploadResponse struct {
	ImageRef string `json:"imageRef"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}
