package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/middleware"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/models/dto"
	"github.com/hongminglow/nova-be/internal/storage"
	"github.com/hongminglow/nova-be/internal/verification"
)

// UserHandler serves the caller's account, a parent's children and parent
// verification.
type UserHandler struct {
	users  storage.UserStore
	ledger *verification.Ledger
}

func NewUserHandler(users storage.UserStore, ledger *verification.Ledger) *UserHandler {
	return &UserHandler{users: users, ledger: ledger}
}

func (h *UserHandler) Register(r chi.Router) {
	r.Get("/users/me", h.handleMe)
	r.With(middleware.RequireUserType(models.UserTypeParent)).Get("/parents/children", h.handleChildren)
	r.With(middleware.RequireUserType(models.UserTypeParent)).Post("/verification/parent", h.handleVerifyParent)
}

func (h *UserHandler) view(u models.User) dto.UserResponse {
	return dto.UserResponse{
		User:            u,
		MonitoringLevel: h.ledger.MonitoringLevel(u),
		IsFullyVerified: verification.IsFullyVerified(u),
	}
}

func (h *UserHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, "current user", h.view(user))
}

func (h *UserHandler) handleChildren(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	children, err := h.users.ListChildren(r.Context(), parent.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]dto.UserResponse, 0, len(children))
	for _, child := range children {
		out = append(out, h.view(child))
	}
	respond.JSON(w, http.StatusOK, "children", out)
}

func (h *UserHandler) handleVerifyParent(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.ParentVerificationRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	kid, err := h.ledger.SetParentVerified(r.Context(), req.ChildID, parent.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "child verified", h.view(kid))
}
