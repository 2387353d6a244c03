package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/nova-be/internal/codes"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/middleware"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/models/dto"
	"github.com/hongminglow/nova-be/internal/verification"
)

// CodeHandler exposes friend and school code issuance and redemption, and
// the friendships friend codes create.
type CodeHandler struct {
	issuer *codes.Issuer
	now    func() time.Time
}

func NewCodeHandler(issuer *codes.Issuer) *CodeHandler {
	return &CodeHandler{issuer: issuer, now: time.Now}
}

func (h *CodeHandler) Register(r chi.Router) {
	r.Post("/friend-codes", h.handleIssueFriendCode)
	r.Post("/friend-codes/claim", h.handleClaimFriendCode)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUserType(models.UserTypeSchool))
		r.Post("/school-codes", h.handleIssueSchoolCode)
		r.Get("/school-codes", h.handleListSchoolCodes)
	})
	r.With(middleware.RequireUserType(models.UserTypeKid)).Post("/school-codes/claim", h.handleClaimSchoolCode)
	r.With(middleware.RequireUserType(models.UserTypeKid)).Get("/kids/friends", h.handleFriends)
}

func (h *CodeHandler) handleFriends(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	friends, err := h.issuer.Friends(r.Context(), user.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]dto.FriendResponse, 0, len(friends))
	for _, f := range friends {
		out = append(out, dto.FriendResponse{
			ID:          f.ID,
			DisplayName: f.Profile.DisplayName,
			Avatar:      f.Profile.Avatar,
			IsVerified:  verification.IsFullyVerified(f),
		})
	}
	respond.JSON(w, http.StatusOK, "friends", out)
}

func (h *CodeHandler) handleIssueFriendCode(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	code, err := h.issuer.IssueFriendCode(r.Context(), user.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "friend code", code)
}

func (h *CodeHandler) handleClaimFriendCode(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.ClaimCodeRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ownerID, err := h.issuer.ClaimFriendCode(r.Context(), req.Code, user.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "friend added", dto.ClaimFriendCodeResponse{FriendID: ownerID})
}

func (h *CodeHandler) handleIssueSchoolCode(w http.ResponseWriter, r *http.Request) {
	school, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.SchoolCodeRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	code, err := h.issuer.IssueSchoolCode(r.Context(), school.ID, req.Grade, school.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "school code created", code)
}

// handleListSchoolCodes returns the school's codes that can still be claimed.
func (h *CodeHandler) handleListSchoolCodes(w http.ResponseWriter, r *http.Request) {
	school, ok := currentUser(w, r)
	if !ok {
		return
	}
	all, err := h.issuer.ListSchoolCodes(r.Context(), school.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	now := h.now()
	live := make([]models.SchoolCode, 0, len(all))
	for _, c := range all {
		if !c.Claimed() && !c.Expired(now) {
			live = append(live, c)
		}
	}
	respond.JSON(w, http.StatusOK, "school codes", live)
}

func (h *CodeHandler) handleClaimSchoolCode(w http.ResponseWriter, r *http.Request) {
	kid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.ClaimCodeRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	schoolID, err := h.issuer.ClaimSchoolCode(r.Context(), req.Code, kid.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "school verified", dto.ClaimSchoolCodeResponse{SchoolID: schoolID})
}
