package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/middleware"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/models/dto"
	"github.com/hongminglow/nova-be/internal/moderation"
)

// MessageHandler serves direct messages between kid friends.
type MessageHandler struct {
	gate      *moderation.Gate
	sendLimit func(http.Handler) http.Handler
}

// NewMessageHandler wires the handler. sendLimit, when non-nil, guards
// only the send route.
func NewMessageHandler(gate *moderation.Gate, sendLimit func(http.Handler) http.Handler) *MessageHandler {
	return &MessageHandler{gate: gate, sendLimit: sendLimit}
}

func (h *MessageHandler) Register(r chi.Router) {
	parentOnly := middleware.RequireUserType(models.UserTypeParent)

	send := r.With(middleware.RequireUserType(models.UserTypeKid))
	if h.sendLimit != nil {
		send = send.With(h.sendLimit)
	}
	send.Post("/messages", h.handleSend)
	r.Get("/messages", h.handleConversation)
	r.With(parentOnly).Get("/messages/pending", h.handlePending)
	r.With(parentOnly).Put("/messages/{id}/approve", h.handleApprove)
	r.With(parentOnly).Put("/messages/{id}/reject", h.handleReject)
}

func (h *MessageHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	sender, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.MessageRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	msg, err := h.gate.SubmitMessage(r.Context(), sender, req.ReceiverID, req.Content)
	if err != nil {
		fail(w, r, err)
		return
	}
	message := "message delivered"
	if msg.Status == models.MessagePending {
		message = "message sent for parent approval"
	}
	respond.JSON(w, http.StatusCreated, message, msg)
}

func (h *MessageHandler) handleConversation(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	with := strings.TrimSpace(r.URL.Query().Get("with"))
	if with == "" {
		fail(w, r, apperr.Invalid("with query parameter is required"))
		return
	}
	msgs, err := h.gate.Conversation(r.Context(), viewer, with)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "conversation", nonNil(msgs))
}

func (h *MessageHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	msgs, err := h.gate.PendingMessages(r.Context(), parent)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "pending messages", nonNil(msgs))
}

func (h *MessageHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	msg, err := h.gate.ApproveMessage(r.Context(), chi.URLParam(r, "id"), parent)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "message approved", msg)
}

func (h *MessageHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	parent, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if err := decodeOptional(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	msg, err := h.gate.RejectMessage(r.Context(), chi.URLParam(r, "id"), parent, req.Reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "message rejected", msg)
}
