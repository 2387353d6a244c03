package dto

import "github.com/hongminglow/nova-be/internal/models"

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	UserType    string `json:"userType" validate:"required,oneof=kid parent school"`
	DisplayName string `json:"displayName" validate:"required,max=50"`
	FirstName   string `json:"firstName" validate:"omitempty,max=50"`
	LastName    string `json:"lastName" validate:"omitempty,max=50"`
	DateOfBirth string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	School      string `json:"school" validate:"omitempty,max=100"`
	Grade       string `json:"grade" validate:"omitempty,max=20"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// UserResponse is a user plus the state derived from it at read time.
type UserResponse struct {
	models.User
	MonitoringLevel models.MonitoringLevel `json:"monitoringLevel"`
	IsFullyVerified bool                   `json:"isFullyVerified"`
}
