package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

// ConversationLimit caps the messages returned by Conversation.
const ConversationLimit = 200

// SubmitMessage stores a direct message between two kid friends. Full-level
// senders always wait for review; partial-level senders are delivered
// immediately unless the content filter flags the text.
func (g *Gate) SubmitMessage(ctx context.Context, sender models.User, receiverID, content string) (models.Message, error) {
	if err := requireAuthor(sender); err != nil {
		return models.Message{}, err
	}
	if receiverID == sender.ID {
		return models.Message{}, apperr.Invalid("cannot message yourself")
	}
	text, err := sanitizeBounded(content, MaxMessageLength, "message")
	if err != nil {
		return models.Message{}, err
	}
	receiver, err := g.users.FindByID(ctx, receiverID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Message{}, apperr.NotFound("receiver")
		}
		return models.Message{}, err
	}
	if receiver.UserType != models.UserTypeKid {
		return models.Message{}, apperr.Invalid("messages can only be sent to kid accounts")
	}
	friends, err := g.friendships.AreFriends(ctx, sender.ID, receiverID)
	if err != nil {
		return models.Message{}, err
	}
	if !friends {
		return models.Message{}, apperr.Forbidden("you can only message friends")
	}

	msg := models.Message{
		SenderID:   sender.ID,
		ReceiverID: receiverID,
		Content:    text,
		Status:     models.MessagePending,
		CreatedAt:  g.now().UTC(),
	}
	if g.level(sender) == models.MonitoringPartial {
		msg.Status = models.MessageDelivered
		if g.scanner != nil {
			verdict, err := g.scanner.Scan(ctx, text)
			if err != nil {
				return models.Message{}, fmt.Errorf("scan message: %w", err)
			}
			if verdict.Flagged {
				reason := verdict.Reason
				msg.Status = models.MessagePending
				msg.Flagged = true
				msg.FlagReason = &reason
			}
		}
	}

	saved, err := g.messages.CreateMessage(ctx, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	g.metrics.Moderated("message", string(saved.Status))
	return saved, nil
}

// ApproveMessage delivers a pending message.
func (g *Gate) ApproveMessage(ctx context.Context, id string, approver models.User) (models.Message, error) {
	return g.moderateMessage(ctx, id, approver, models.MessageDelivered, nil)
}

// RejectMessage rejects a pending message.
func (g *Gate) RejectMessage(ctx context.Context, id string, approver models.User, reason *string) (models.Message, error) {
	return g.moderateMessage(ctx, id, approver, models.MessageRejected, optionalReason(reason))
}

func (g *Gate) moderateMessage(ctx context.Context, id string, approver models.User, to models.MessageStatus, reason *string) (models.Message, error) {
	msg, err := g.messages.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Message{}, apperr.NotFound("message")
		}
		return models.Message{}, err
	}
	if msg.Status != models.MessagePending {
		return models.Message{}, apperr.ErrNotPending
	}
	if err := g.authorizeApprover(ctx, approver, msg.SenderID); err != nil {
		return models.Message{}, err
	}

	updated, err := g.messages.ModerateMessage(ctx, id, to, storage.Moderation{
		ModeratorID: approver.ID,
		At:          g.now().UTC(),
		Reason:      reason,
	})
	switch {
	case errors.Is(err, storage.ErrConflict):
		return models.Message{}, apperr.ErrNotPending
	case err != nil:
		return models.Message{}, fmt.Errorf("moderate message: %w", err)
	}
	g.metrics.Moderated("message", string(to))
	return updated, nil
}

// PendingMessages is the parent's message review queue.
func (g *Gate) PendingMessages(ctx context.Context, parent models.User) ([]models.Message, error) {
	ids, err := g.childIDs(ctx, parent)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	return g.messages.ListMessages(ctx, storage.MessageFilter{SenderIDs: ids, Status: models.MessagePending})
}

// Conversation lists the latest messages between viewer and otherID,
// oldest first.
// The viewer sees everything they sent but only delivered messages they
// received.
func (g *Gate) Conversation(ctx context.Context, viewer models.User, otherID string) ([]models.Message, error) {
	if otherID == "" {
		return nil, apperr.Invalid("with is required")
	}
	all, err := g.messages.ListMessages(ctx, storage.MessageFilter{
		Between: [2]string{viewer.ID, otherID},
		Limit:   ConversationLimit,
		Latest:  true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(all))
	for _, m := range all {
		if m.SenderID == viewer.ID || m.Status == models.MessageDelivered {
			out = append(out, m)
		}
	}
	return out, nil
}
