// Package moderation gates kid-authored posts, messages and profile change
// requests behind parental approval according to the author's monitoring
// level at creation time.
package moderation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/contentfilter"
	"github.com/hongminglow/nova-be/internal/metrics"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
	"github.com/hongminglow/nova-be/internal/verification"
)

const (
	MaxPostLength    = 500
	MaxMessageLength = 1000
	MaxCommentLength = 200
)

// Gate is the moderation state machine for every kid-authored artifact.
type Gate struct {
	users       storage.UserStore
	friendships storage.FriendshipStore
	posts       storage.PostStore
	messages    storage.MessageStore
	changes     storage.ProfileChangeStore
	scanner     contentfilter.Scanner
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewGate wires the gate over store. scanner is consulted for messages from
// partial-level senders.
func NewGate(store storage.Store, scanner contentfilter.Scanner, m *metrics.Metrics) *Gate {
	return &Gate{
		users:       store,
		friendships: store,
		posts:       store,
		messages:    store,
		changes:     store,
		scanner:     scanner,
		metrics:     m,
		now:         time.Now,
	}
}

// WithClock replaces the gate's time source.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) level(u models.User) models.MonitoringLevel {
	return verification.DeriveMonitoringLevel(u, g.now())
}

// authorizeApprover loads the artifact's author and checks approver is the
// author's linked parent.
func (g *Gate) authorizeApprover(ctx context.Context, approver models.User, authorID string) error {
	author, err := g.users.FindByID(ctx, authorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.ErrUnauthorized
		}
		return err
	}
	if !approver.IsParentOf(author) {
		return apperr.ErrUnauthorized
	}
	return nil
}

func (g *Gate) childIDs(ctx context.Context, parent models.User) ([]string, error) {
	if !parent.UserType.CanModerate() {
		return nil, apperr.Forbidden("only parent accounts have a review queue")
	}
	children, err := g.users.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func requireAuthor(u models.User) error {
	if !u.UserType.CanAuthorContent() {
		return apperr.Forbidden("only kid accounts can do this")
	}
	return nil
}

// Sanitize strips control characters and collapses runs of whitespace.
func Sanitize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(cleaned), " ")
}

func sanitizeBounded(text string, max int, what string) (string, error) {
	out := Sanitize(text)
	switch n := utf8.RuneCountInString(out); {
	case n == 0:
		return "", apperr.Invalid(what + " content is required")
	case n > max:
		return "", apperr.Invalid(what + " content is too long")
	}
	return out, nil
}

func optionalReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*reason)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
