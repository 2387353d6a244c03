package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

// PostInput is what a kid submits when creating a post. Nil visibility
// flags default to true.
type PostInput struct {
	Content           string
	ImageRef          *string
	VisibleToChildren *bool
	VisibleToAdults   *bool
}

// FeedLimit caps the number of posts returned by Feed.
const FeedLimit = 50

// SubmitPost stores a new post as pending or approved depending on the
// author's current monitoring level.
func (g *Gate) SubmitPost(ctx context.Context, author models.User, in PostInput) (models.Post, error) {
	if err := requireAuthor(author); err != nil {
		return models.Post{}, err
	}
	content, err := sanitizeBounded(in.Content, MaxPostLength, "post")
	if err != nil {
		return models.Post{}, err
	}

	status := models.PostApproved
	if g.level(author) == models.MonitoringFull {
		status = models.PostPending
	}
	now := g.now().UTC()
	post, err := g.posts.CreatePost(ctx, models.Post{
		AuthorID:          author.ID,
		Content:           content,
		ImageRef:          in.ImageRef,
		Status:            status,
		Likes:             []string{},
		CommentIDs:        []string{},
		VisibleToChildren: boolOr(in.VisibleToChildren, true),
		VisibleToAdults:   boolOr(in.VisibleToAdults, true),
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}
	g.metrics.Moderated("post", string(post.Status))
	return post, nil
}

// ApprovePost moves a pending post to approved.
func (g *Gate) ApprovePost(ctx context.Context, id string, approver models.User) (models.Post, error) {
	return g.moderatePost(ctx, id, approver, models.PostApproved, nil)
}

// RejectPost moves a pending post to rejected. The post is kept.
func (g *Gate) RejectPost(ctx context.Context, id string, approver models.User, reason *string) (models.Post, error) {
	return g.moderatePost(ctx, id, approver, models.PostRejected, optionalReason(reason))
}

func (g *Gate) moderatePost(ctx context.Context, id string, approver models.User, to models.PostStatus, reason *string) (models.Post, error) {
	post, err := g.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Post{}, apperr.NotFound("post")
		}
		return models.Post{}, err
	}
	if post.Status != models.PostPending {
		return models.Post{}, apperr.ErrNotPending
	}
	if err := g.authorizeApprover(ctx, approver, post.AuthorID); err != nil {
		return models.Post{}, err
	}

	updated, err := g.posts.ModeratePost(ctx, id, to, storage.Moderation{
		ModeratorID: approver.ID,
		At:          g.now().UTC(),
		Reason:      reason,
	})
	switch {
	case errors.Is(err, storage.ErrConflict):
		return models.Post{}, apperr.ErrNotPending
	case err != nil:
		return models.Post{}, fmt.Errorf("moderate post: %w", err)
	}
	g.metrics.Moderated("post", string(to))
	return updated, nil
}

// PendingPosts is the parent's post review queue.
func (g *Gate) PendingPosts(ctx context.Context, parent models.User) ([]models.Post, error) {
	ids, err := g.childIDs(ctx, parent)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Post{}, nil
	}
	return g.posts.ListPosts(ctx, storage.PostFilter{AuthorIDs: ids, Status: models.PostPending})
}

// Feed returns approved posts the viewer may see: a kid sees their own and
// their friends' posts, a parent sees their children's.
func (g *Gate) Feed(ctx context.Context, viewer models.User) ([]models.Post, error) {
	var authors []string
	switch viewer.UserType {
	case models.UserTypeKid:
		friends, err := g.friendships.ListFriendIDs(ctx, viewer.ID)
		if err != nil {
			return nil, err
		}
		authors = append([]string{viewer.ID}, friends...)
	case models.UserTypeParent:
		ids, err := g.childIDs(ctx, viewer)
		if err != nil {
			return nil, err
		}
		authors = ids
	default:
		return nil, apperr.Forbidden("feed is available to kid and parent accounts")
	}
	if len(authors) == 0 {
		return []models.Post{}, nil
	}

	posts, err := g.posts.ListPosts(ctx, storage.PostFilter{AuthorIDs: authors, Status: models.PostApproved, Limit: FeedLimit})
	if err != nil {
		return nil, err
	}
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if p.AuthorID == viewer.ID {
			out = append(out, p)
			continue
		}
		if viewer.UserType == models.UserTypeKid && p.VisibleToChildren {
			out = append(out, p)
		}
		if viewer.UserType == models.UserTypeParent && p.VisibleToAdults {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetPost returns a post if the viewer may see it. Posts the viewer may not
// see are reported as missing.
func (g *Gate) GetPost(ctx context.Context, viewer models.User, id string) (models.Post, error) {
	post, err := g.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Post{}, apperr.NotFound("post")
		}
		return models.Post{}, err
	}
	ok, err := g.canView(ctx, viewer, post)
	if err != nil {
		return models.Post{}, err
	}
	if !ok {
		return models.Post{}, apperr.NotFound("post")
	}
	return post, nil
}

// LikePost adds viewer to an approved post's likes. Liking twice is a no-op.
func (g *Gate) LikePost(ctx context.Context, viewer models.User, id string) (models.Post, error) {
	post, err := g.GetPost(ctx, viewer, id)
	if err != nil {
		return models.Post{}, err
	}
	if post.Status != models.PostApproved {
		return models.Post{}, apperr.Invalid("only approved posts can be liked")
	}
	return g.posts.AddLike(ctx, id, viewer.ID)
}

// CommentOnPost adds a kid's comment to an approved post the kid can see.
func (g *Gate) CommentOnPost(ctx context.Context, author models.User, id, text string) (models.Comment, error) {
	if err := requireAuthor(author); err != nil {
		return models.Comment{}, err
	}
	content, err := sanitizeBounded(text, MaxCommentLength, "comment")
	if err != nil {
		return models.Comment{}, err
	}
	post, err := g.GetPost(ctx, author, id)
	if err != nil {
		return models.Comment{}, err
	}
	if post.Status != models.PostApproved {
		return models.Comment{}, apperr.Forbidden("only approved posts can be commented on")
	}
	comment, err := g.posts.AddComment(ctx, models.Comment{
		PostID:    post.ID,
		AuthorID:  author.ID,
		Content:   content,
		CreatedAt: g.now().UTC(),
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return models.Comment{}, apperr.NotFound("post")
	case err != nil:
		return models.Comment{}, fmt.Errorf("add comment: %w", err)
	}
	return comment, nil
}

// Comments lists the comments on a post the viewer can see.
func (g *Gate) Comments(ctx context.Context, viewer models.User, id string) ([]models.Comment, error) {
	post, err := g.GetPost(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	comments, err := g.posts.ListComments(ctx, post.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("post")
	}
	return comments, err
}

func (g *Gate) canView(ctx context.Context, viewer models.User, post models.Post) (bool, error) {
	if viewer.ID == post.AuthorID {
		return true, nil
	}
	author, err := g.users.FindByID(ctx, post.AuthorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	friends := false
	if viewer.UserType == models.UserTypeKid && post.Status == models.PostApproved {
		friends, err = g.friendships.AreFriends(ctx, viewer.ID, post.AuthorID)
		if err != nil {
			return false, err
		}
	}
	return CanViewPost(viewer, author, post, friends), nil
}

// CanViewPost applies the audience rules: pending posts are visible to the
// author and the author's parent, rejected posts to the author and the
// rejecting parent, archived posts to the author and parent. Approved posts
// reach the author's parent when shared with adults and friends when shared
// with children, the same audience Feed uses.
func CanViewPost(viewer, author models.User, post models.Post, friends bool) bool {
	if viewer.ID == post.AuthorID {
		return true
	}
	isParent := viewer.IsParentOf(author)
	switch post.Status {
	case models.PostPending, models.PostArchived:
		return isParent
	case models.PostRejected:
		return post.ModeratedByID != nil && *post.ModeratedByID == viewer.ID
	case models.PostApproved:
		if isParent {
			return post.VisibleToAdults
		}
		return friends && post.VisibleToChildren && viewer.UserType == models.UserTypeKid
	}
	return false
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
