package postgres

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

const postSelect = `
	SELECT p.id, p.author_id, p.content, p.image_ref, p.status, p.moderated_by, p.moderated_at,
		p.rejection_reason,
		COALESCE((SELECT array_agg(l.user_id ORDER BY l.created_at) FROM post_likes l WHERE l.post_id = p.id), '{}'),
		p.comment_ids, p.visible_to_children, p.visible_to_adults, p.created_at, p.updated_at
	FROM posts p`

func scanPost(row pgx.Row) (models.Post, error) {
	var (
		p      models.Post
		status string
	)
	err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &p.ImageRef, &status, &p.ModeratedByID, &p.ModeratedAt,
		&p.RejectionReason, &p.Likes, &p.CommentIDs, &p.VisibleToChildren, &p.VisibleToAdults, &p.CreatedAt, &p.UpdatedAt)
	p.Status = models.PostStatus(status)
	return p, err
}

func (s *Store) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CommentIDs == nil {
		post.CommentIDs = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO posts (id, author_id, content, image_ref, status, comment_ids,
			visible_to_children, visible_to_adults, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		post.ID, post.AuthorID, post.Content, post.ImageRef, string(post.Status), post.CommentIDs,
		post.VisibleToChildren, post.VisibleToAdults, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return models.Post{}, mapErr(err)
	}
	return s.GetPost(ctx, post.ID)
}

func (s *Store) GetPost(ctx context.Context, id string) (models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, postSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return models.Post{}, mapErr(err)
	}
	return p, nil
}

// ModeratePost is a status-conditioned update; a post that already left
// pending is ErrConflict.
func (s *Store) ModeratePost(ctx context.Context, id string, status models.PostStatus, m storage.Moderation) (models.Post, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts SET status = $2, moderated_by = $3, moderated_at = $4, rejection_reason = $5, updated_at = $4
		WHERE id = $1 AND status = 'pending'`,
		id, string(status), m.ModeratorID, m.At, m.Reason)
	if err != nil {
		return models.Post{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Post{}, conflictOrMissing(ctx, s.pool, "posts", id)
	}
	return s.GetPost(ctx, id)
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) ([]models.Post, error) {
	var w where
	if filter.AuthorIDs != nil {
		w.add("p.author_id = ANY(?)", filter.AuthorIDs)
	}
	if filter.Status != "" {
		w.add("p.status = ?", string(filter.Status))
	}
	query := postSelect + w.sql() + ` ORDER BY p.created_at DESC` + w.limit(filter.Limit)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AddLike(ctx context.Context, postID, userID string) (models.Post, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, postID, userID)
	if err != nil {
		var fk interface{ SQLState() string }
		if errors.As(err, &fk) && fk.SQLState() == "23503" {
			return models.Post{}, storage.ErrNotFound
		}
		return models.Post{}, err
	}
	return s.GetPost(ctx, postID)
}

const commentColumns = `id, post_id, author_id, content, created_at`

// AddComment inserts the comment and appends its ID to posts.comment_ids.
func (s *Store) AddComment(ctx context.Context, comment models.Comment) (models.Comment, error) {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	var saved models.Comment
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE posts SET comment_ids = array_append(comment_ids, $2), updated_at = $3
			WHERE id = $1`, comment.PostID, comment.ID, comment.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		return tx.QueryRow(ctx, `
			INSERT INTO comments (id, post_id, author_id, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+commentColumns,
			comment.ID, comment.PostID, comment.AuthorID, comment.Content, comment.CreatedAt).
			Scan(&saved.ID, &saved.PostID, &saved.AuthorID, &saved.Content, &saved.CreatedAt)
	})
	if err != nil {
		return models.Comment{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	ok, err := exists(ctx, s.pool, "posts", postID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound
	}
	rows, err := s.pool.Query(ctx, `SELECT `+commentColumns+` FROM comments WHERE post_id = $1 ORDER BY created_at, id`, postID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Comment, error) {
		var c models.Comment
		err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.CreatedAt)
		return c, err
	})
}

// ArchivePostsBefore moves approved posts created before cutoff to archived.
func (s *Store) ArchivePostsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts SET status = 'archived', updated_at = NOW()
		WHERE status = 'approved' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Messages

const messageColumns = `id, sender_id, receiver_id, content, status, flagged, flag_reason,
	moderated_by, moderated_at, rejection_reason, created_at`

func scanMessage(row pgx.Row) (models.Message, error) {
	var (
		m      models.Message
		status string
	)
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &status, &m.Flagged, &m.FlagReason,
		&m.ModeratedByID, &m.ModeratedAt, &m.RejectionReason, &m.CreatedAt)
	m.Status = models.MessageStatus(status)
	return m, err
}

func (s *Store) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, status, flagged, flag_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+messageColumns,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, string(msg.Status), msg.Flagged, msg.FlagReason, msg.CreatedAt)
	saved, err := scanMessage(row)
	if err != nil {
		return models.Message{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (models.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return models.Message{}, mapErr(err)
	}
	return m, nil
}

func (s *Store) ModerateMessage(ctx context.Context, id string, status models.MessageStatus, m storage.Moderation) (models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages SET status = $2, moderated_by = $3, moderated_at = $4, rejection_reason = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+messageColumns,
		id, string(status), m.ModeratorID, m.At, m.Reason)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, conflictOrMissing(ctx, s.pool, "messages", id)
	}
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, filter storage.MessageFilter) ([]models.Message, error) {
	var w where
	if filter.SenderIDs != nil {
		w.add("sender_id = ANY(?)", filter.SenderIDs)
	}
	if a, b := filter.Between[0], filter.Between[1]; a != "" && b != "" {
		w.add("? IN (sender_id, receiver_id)", a)
		w.add("? IN (sender_id, receiver_id)", b)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	order := ` ORDER BY created_at`
	if filter.Latest {
		order += ` DESC`
	}
	query := `SELECT ` + messageColumns + ` FROM messages` + w.sql() + order + w.limit(filter.Limit)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if filter.Latest {
		slices.Reverse(out)
	}
	return out, nil
}
