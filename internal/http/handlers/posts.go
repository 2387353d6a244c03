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

// PostHandler serves the feed and the post moderation queue.
type PostHandler struct {
	gate *moderation.Gate
}

func NewPostHandler(gate *moderation.Gate) *PostHandler {
	return &PostHandler{gate: gate}
}

func (h *PostHandler) Register(r chi.Router) {
	parentOnly := middleware.RequireUserType(models.UserTypeParent)

	r.Get("/posts", h.handleFeed)
	r.With(middleware.RequireUserType(models.UserTypeKid)).Post("/posts", h.handleCreate)
	r.With(parentOnly).Get("/posts/pending", h.handlePending)
	r.Get("/posts/{id}", h.handleGet)
	r.With(parentOnly).Put("/posts/{id}/approve", h.handleApprove)
	r.With(parentOnly).Put("/posts/{id}/reject", h.handleReject)
	r.Post("/posts/{id}/like", h.handleLike)
	r.With(middleware.RequireUserType(models.UserTypeKid)).Post("/posts/{id}/comment", h.handleComment)
	r.Get("/posts/{id}/comments", h.handleComments)
}

func (h *PostHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	author, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.PostRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	post, err := h.gate.SubmitPost(r.Context(), author, moderation.PostInput{
		Content:           req.Content,
		ImageRef:          req.ImageRef,
		VisibleToChildren: req.VisibleToChildren,
		VisibleToAdults:   req.VisibleToAdults,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	message := "post published"
	if post.Status == models.PostPending {
		message = "post submitted for parent approval"
	}
	respond.JSON(w, http.StatusCreated, message, post)
}

func (h *PostHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	posts, err := h.gate.Feed(r.Context(), viewer)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "feed", nonNil(posts))
}

func (h *PostHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	posts, err := h.gate.PendingPosts(r.Context(), parent)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "pending posts", nonNil(posts))
}

func (h *PostHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	post, err := h.gate.GetPost(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "post", post)
}

func (h *PostHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	post, err := h.gate.ApprovePost(r.Context(), chi.URLParam(r, "id"), parent)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "post approved", post)
}

func (h *PostHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if err := decodeOptional(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	post, err := h.gate.RejectPost(r.Context(), chi.URLParam(r, "id"), parent, req.Reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "post rejected", post)
}

func (h *PostHandler) handleLike(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	post, err := h.gate.LikePost(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "post liked", post)
}

func (h *PostHandler) handleComment(w http.ResponseWriter, r *http.Request) {
	author, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.CommentRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	comment, err := h.gate.CommentOnPost(r.Context(), author, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "comment added", comment)
}

func (h *PostHandler) handleComments(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	comments, err := h.gate.Comments(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "comments", nonNil(comments))
}

// nonNil keeps empty lists encoded as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
