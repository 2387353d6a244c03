package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/middleware"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/models/dto"
	"github.com/hongminglow/nova-be/internal/moderation"
)

type ProfileChangeHandler struct {
	gate *moderation.Gate
}

func NewProfileChangeHandler(gate *moderation.Gate) *ProfileChangeHandler {
	return &ProfileChangeHandler{gate: gate}
}

func (h *ProfileChangeHandler) Register(r chi.Router) {
	parentOnly := middleware.RequireUserType(models.UserTypeParent)

	r.With(middleware.RequireUserType(models.UserTypeKid)).Post("/profile-changes", h.handleRequest)
	r.With(parentOnly).Get("/profile-changes/pending", h.handlePending)
	r.With(parentOnly).Put("/profile-changes/{id}/approve", h.handleApprove)
	r.With(parentOnly).Put("/profile-changes/{id}/reject", h.handleReject)
}

func (h *ProfileChangeHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	kid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.ProfileChangeRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	change, err := h.gate.RequestProfileChange(r.Context(), kid, req.Changes())
	if err != nil {
		fail(w, r, err)
		return
	}
	message := "profile updated"
	if change.Status == models.RequestPending {
		message = "profile change sent for parent approval"
	}
	respond.JSON(w, http.StatusCreated, message, change)
}

func (h *ProfileChangeHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	changes, err := h.gate.PendingProfileChanges(r.Context(), parent)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "pending profile changes", nonNil(changes))
}

func (h *ProfileChangeHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	change, kid, err := h.gate.ApplyProfileChange(r.Context(), chi.URLParam(r, "id"), parent)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "profile change applied", map[string]any{
		"request": change,
		"user":    kid,
	})
}

func (h *ProfileChangeHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if err := decodeOptional(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	change, err := h.gate.RejectProfileChange(r.Context(), chi.URLParam(r, "id"), parent, req.Reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "profile change rejected", change)
}
