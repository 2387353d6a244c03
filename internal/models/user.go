package models

import "time"

// MonitoringLevel governs how much parental review a kid's content needs.
type MonitoringLevel string

const (
	MonitoringFull    MonitoringLevel = "full"
	MonitoringPartial MonitoringLevel = "partial"
)

// Profile holds the user-editable presentation fields.
type Profile struct {
	DisplayName string     `json:"displayName"`
	FirstName   string     `json:"firstName,omitempty"`
	LastName    string     `json:"lastName,omitempty"`
	Avatar      string     `json:"avatar,omitempty"`
	School      string     `json:"school,omitempty"`
	Grade       string     `json:"grade,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

// Verification is the two-tick state of a kid account.
type Verification struct {
	ParentVerified bool       `json:"parentVerified"`
	SchoolVerified bool       `json:"schoolVerified"`
	VerifiedAt     *time.Time `json:"verifiedAt,omitempty"`
}

// User captures application-facing fields for an authenticated identity.
// Monitoring level is not stored; see verification.DeriveMonitoringLevel.
type User struct {
	ID              string       `json:"id"`
	Email           string       `json:"email"`
	PasswordHash    string       `json:"-"`
	UserType        UserType     `json:"userType"`
	Profile         Profile      `json:"profile"`
	Verification    Verification `json:"verification"`
	ParentAccountID *string      `json:"parentAccountId,omitempty"`
	SchoolAccountID *string      `json:"schoolAccountId,omitempty"`
	IsActive        bool         `json:"isActive"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// IsParentOf reports whether u is the linked parent of kid.
func (u User) IsParentOf(kid User) bool {
	return u.UserType == UserTypeParent && kid.ParentAccountID != nil && *kid.ParentAccountID == u.ID
}
