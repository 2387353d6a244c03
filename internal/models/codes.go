package models

import "time"

// FriendCode is a standing friendship invitation owned by one user.
type FriendCode struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the code is past its validity window at now.
func (c FriendCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// SchoolCode links exactly one kid to a school and grade.
type SchoolCode struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	SchoolID      string     `json:"schoolId"`
	GradeLevel    string     `json:"grade"`
	GeneratedByID string     `json:"generatedBy"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	UsedByID      *string    `json:"usedBy,omitempty"`
	UsedAt        *time.Time `json:"usedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Expired reports whether the code is past its validity window at now.
func (c SchoolCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Claimed reports whether the code reached its terminal used state.
func (c SchoolCode) Claimed() bool {
	return c.UsedByID != nil
}
