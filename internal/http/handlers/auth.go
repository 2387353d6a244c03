package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/auth"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/middleware"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/models/dto"
	"github.com/hongminglow/nova-be/internal/storage"
)

// AuthHandler owns the register and login endpoints.
type AuthHandler struct {
	store  storage.UserStore
	tokens *auth.TokenManager
	now    func() time.Time
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(store storage.UserStore, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{store: store, tokens: tokens, now: time.Now}
}

// Register attaches auth routes to r.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	userType := models.UserType(req.UserType)
	profile := models.Profile{
		DisplayName: strings.TrimSpace(req.DisplayName),
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		School:      strings.TrimSpace(req.School),
		Grade:       strings.TrimSpace(req.Grade),
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(time.DateOnly, req.DateOfBirth)
		if err != nil {
			fail(w, r, apperr.Invalid("dateOfBirth must be formatted YYYY-MM-DD"))
			return
		}
		if dob.After(h.now()) {
			fail(w, r, apperr.Invalid("dateOfBirth cannot be in the future"))
			return
		}
		profile.DateOfBirth = &dob
	}
	if userType == models.UserTypeKid && profile.DateOfBirth == nil {
		fail(w, r, apperr.Invalid("dateOfBirth is required for kid accounts"))
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[ERR] id=%s hash password: %v", middleware.RequestID(r.Context()), err)
		respond.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	now := h.now().UTC()
	created, err := h.store.CreateUser(r.Context(), models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: passwordHash,
		UserType:     userType,
		Profile:      profile,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			fail(w, r, apperr.Invalid("user already exists"))
			return
		}
		fail(w, r, err)
		return
	}

	token, err := h.tokens.Generate(created)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "User created successfully", dto.LoginResponse{Token: token, User: created})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	user, err := h.store.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		fail(w, r, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respond.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.IsActive {
		fail(w, r, apperr.ErrInactiveAccount)
		return
	}
	token, err := h.tokens.Generate(user)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "login successful", dto.LoginResponse{Token: token, User: user})
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
