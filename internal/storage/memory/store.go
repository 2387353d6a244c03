package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// Store is an in-process implementation of storage.Store. Every method
// runs under one mutex, which gives the same all-or-nothing behaviour the
// Postgres store gets from transactions and conditional updates.
type Store struct {
	mu             sync.Mutex
	users          map[string]models.User
	friendCodes    map[string]models.FriendCode
	schoolCodes    map[string]models.SchoolCode
	friendships    map[string]map[string]time.Time
	posts          map[string]models.Post
	comments       map[string]models.Comment
	messages       map[string]models.Message
	profileChanges map[string]models.ProfileChangeRequest
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:          make(map[string]models.User),
		friendCodes:    make(map[string]models.FriendCode),
		schoolCodes:    make(map[string]models.SchoolCode),
		friendships:    make(map[string]map[string]time.Time),
		posts:          make(map[string]models.Post),
		comments:       make(map[string]models.Comment),
		messages:       make(map[string]models.Message),
		profileChanges: make(map[string]models.ProfileChangeRequest),
	}
}

// Close is a no-op.
func (s *Store) Close() {}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// Users

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.users {
		if existing.Email == email {
			return models.User{}, storage.ErrAlreadyExists
		}
	}
	user.ID = newID(user.ID)
	user.Email = email
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return user, nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (s *Store) LinkParent(_ context.Context, kidID, parentID string, at time.Time) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kid, ok := s.users[kidID]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	if kid.ParentAccountID != nil && *kid.ParentAccountID != parentID {
		return models.User{}, storage.ErrConflict
	}
	if !kid.Verification.ParentVerified {
		kid.Verification.ParentVerified = true
		kid.Verification.VerifiedAt = stampOnce(kid.Verification.VerifiedAt, at)
		kid.UpdatedAt = at
	}
	kid.ParentAccountID = &parentID
	s.users[kidID] = kid
	return kid, nil
}

func (s *Store) ListChildren(_ context.Context, parentID string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, user := range s.users {
		if user.ParentAccountID != nil && *user.ParentAccountID == parentID {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func stampOnce(current *time.Time, at time.Time) *time.Time {
	if current != nil {
		return current
	}
	return &at
}

// Codes

func (s *Store) FindFriendCodeByOwner(_ context.Context, ownerID string) (models.FriendCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range s.friendCodes {
		if code.OwnerID == ownerID {
			return code, nil
		}
	}
	return models.FriendCode{}, storage.ErrNotFound
}

func (s *Store) FindFriendCode(_ context.Context, value string) (models.FriendCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range s.friendCodes {
		if code.Code == value {
			return code, nil
		}
	}
	return models.FriendCode{}, storage.ErrNotFound
}

func (s *Store) SaveFriendCode(_ context.Context, code models.FriendCode) (models.FriendCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.friendCodes {
		if existing.Code == code.Code && existing.OwnerID != code.OwnerID {
			return models.FriendCode{}, storage.ErrAlreadyExists
		}
	}
	for id, existing := range s.friendCodes {
		if existing.OwnerID != code.OwnerID {
			continue
		}
		if !existing.Expired(code.CreatedAt) {
			return existing, nil
		}
		delete(s.friendCodes, id)
	}
	code.ID = newID(code.ID)
	s.friendCodes[code.ID] = code
	return code, nil
}

func (s *Store) CreateSchoolCode(_ context.Context, code models.SchoolCode) (models.SchoolCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.schoolCodes {
		if existing.Code == code.Code && !existing.Claimed() {
			return models.SchoolCode{}, storage.ErrAlreadyExists
		}
	}
	code.ID = newID(code.ID)
	s.schoolCodes[code.ID] = code
	return code, nil
}

func (s *Store) FindSchoolCode(_ context.Context, value string) (models.SchoolCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.SchoolCode
	for _, code := range s.schoolCodes {
		if code.Code != value {
			continue
		}
		if !code.Claimed() {
			return code, nil
		}
		if found == nil || code.CreatedAt.After(found.CreatedAt) {
			c := code
			found = &c
		}
	}
	if found == nil {
		return models.SchoolCode{}, storage.ErrNotFound
	}
	return *found, nil
}

func (s *Store) ClaimSchoolCode(_ context.Context, codeID, claimantID, schoolName string, at time.Time) (models.SchoolCode, models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.schoolCodes[codeID]
	if !ok {
		return models.SchoolCode{}, models.User{}, storage.ErrNotFound
	}
	if code.Claimed() {
		return models.SchoolCode{}, models.User{}, storage.ErrConflict
	}
	kid, ok := s.users[claimantID]
	if !ok {
		return models.SchoolCode{}, models.User{}, storage.ErrNotFound
	}
	code.UsedByID = &claimantID
	code.UsedAt = &at
	s.schoolCodes[codeID] = code

	schoolID := code.SchoolID
	kid.SchoolAccountID = &schoolID
	kid.Verification.SchoolVerified = true
	kid.Verification.VerifiedAt = stampOnce(kid.Verification.VerifiedAt, at)
	if schoolName != "" {
		kid.Profile.School = schoolName
	}
	kid.Profile.Grade = code.GradeLevel
	kid.UpdatedAt = at
	s.users[claimantID] = kid
	return code, kid, nil
}

func (s *Store) ListSchoolCodes(_ context.Context, schoolID string) ([]models.SchoolCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SchoolCode
	for _, code := range s.schoolCodes {
		if code.SchoolID == schoolID {
			out = append(out, code)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteExpiredFriendCodes(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, code := range s.friendCodes {
		if code.Expired(now) {
			delete(s.friendCodes, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpiredSchoolCodes(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, code := range s.schoolCodes {
		if code.Expired(now) && !code.Claimed() {
			delete(s.schoolCodes, id)
			n++
		}
	}
	return n, nil
}

// Friendships

func (s *Store) CreateFriendship(_ context.Context, a, b string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link(a, b, at)
	s.link(b, a, at)
	return nil
}

func (s *Store) link(from, to string, at time.Time) {
	peers, ok := s.friendships[from]
	if !ok {
		peers = make(map[string]time.Time)
		s.friendships[from] = peers
	}
	if _, exists := peers[to]; !exists {
		peers[to] = at
	}
}

func (s *Store) AreFriends(_ context.Context, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.friendships[a][b]
	return ok, nil
}

func (s *Store) ListFriendIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.friendships[userID]))
	for id := range s.friendships[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Posts

func (s *Store) CreatePost(_ context.Context, post models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post.ID = newID(post.ID)
	post.Likes = append([]string{}, post.Likes...)
	post.CommentIDs = append([]string{}, post.CommentIDs...)
	s.posts[post.ID] = post
	return clonePost(post), nil
}

func (s *Store) GetPost(_ context.Context, id string) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return models.Post{}, storage.ErrNotFound
	}
	return clonePost(post), nil
}

func (s *Store) ModeratePost(_ context.Context, id string, status models.PostStatus, m storage.Moderation) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return models.Post{}, storage.ErrNotFound
	}
	if post.Status != models.PostPending {
		return models.Post{}, storage.ErrConflict
	}
	moderator := m.ModeratorID
	at := m.At
	post.Status = status
	post.ModeratedByID = &moderator
	post.ModeratedAt = &at
	post.RejectionReason = m.Reason
	post.UpdatedAt = at
	s.posts[id] = post
	return clonePost(post), nil
}

func (s *Store) ListPosts(_ context.Context, filter storage.PostFilter) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	authors := toSet(filter.AuthorIDs)
	var out []models.Post
	for _, post := range s.posts {
		if filter.AuthorIDs != nil && !authors[post.AuthorID] {
			continue
		}
		if filter.Status != "" && post.Status != filter.Status {
			continue
		}
		out = append(out, clonePost(post))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limit(out, filter.Limit), nil
}

func (s *Store) AddLike(_ context.Context, postID, userID string) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postID]
	if !ok {
		return models.Post{}, storage.ErrNotFound
	}
	for _, liker := range post.Likes {
		if liker == userID {
			return clonePost(post), nil
		}
	}
	post.Likes = append(post.Likes, userID)
	s.posts[postID] = post
	return clonePost(post), nil
}

func (s *Store) AddComment(_ context.Context, comment models.Comment) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[comment.PostID]
	if !ok {
		return models.Comment{}, storage.ErrNotFound
	}
	comment.ID = newID(comment.ID)
	s.comments[comment.ID] = comment
	post.CommentIDs = append(post.CommentIDs, comment.ID)
	s.posts[post.ID] = post
	return comment, nil
}

func (s *Store) ListComments(_ context.Context, postID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]models.Comment, 0, len(post.CommentIDs))
	for _, id := range post.CommentIDs {
		out = append(out, s.comments[id])
	}
	return out, nil
}

func (s *Store) ArchivePostsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, post := range s.posts {
		if post.Status == models.PostApproved && post.CreatedAt.Before(cutoff) {
			post.Status = models.PostArchived
			s.posts[id] = post
			n++
		}
	}
	return n, nil
}

func clonePost(p models.Post) models.Post {
	p.Likes = append([]string{}, p.Likes...)
	p.CommentIDs = append([]string{}, p.CommentIDs...)
	return p
}

// Messages

func (s *Store) CreateMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = newID(msg.ID)
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) GetMessage(_ context.Context, id string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return models.Message{}, storage.ErrNotFound
	}
	return msg, nil
}

func (s *Store) ModerateMessage(_ context.Context, id string, status models.MessageStatus, m storage.Moderation) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return models.Message{}, storage.ErrNotFound
	}
	if msg.Status != models.MessagePending {
		return models.Message{}, storage.ErrConflict
	}
	moderator := m.ModeratorID
	at := m.At
	msg.Status = status
	msg.ModeratedByID = &moderator
	msg.ModeratedAt = &at
	msg.RejectionReason = m.Reason
	s.messages[id] = msg
	return msg, nil
}

func (s *Store) ListMessages(_ context.Context, filter storage.MessageFilter) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	senders := toSet(filter.SenderIDs)
	a, b := filter.Between[0], filter.Between[1]
	var out []models.Message
	for _, msg := range s.messages {
		if filter.SenderIDs != nil && !senders[msg.SenderID] {
			continue
		}
		if a != "" && b != "" {
			forward := msg.SenderID == a && msg.ReceiverID == b
			backward := msg.SenderID == b && msg.ReceiverID == a
			if !forward && !backward {
				continue
			}
		}
		if filter.Status != "" && msg.Status != filter.Status {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Latest && filter.Limit > 0 && len(out) > filter.Limit {
		return out[len(out)-filter.Limit:], nil
	}
	return limit(out, filter.Limit), nil
}

// Profile change requests

func (s *Store) CreateProfileChange(_ context.Context, req models.ProfileChangeRequest) (models.ProfileChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kid, ok := s.users[req.KidID]
	if !ok {
		return models.ProfileChangeRequest{}, storage.ErrNotFound
	}
	if req.Status == models.RequestPending {
		for _, existing := range s.profileChanges {
			if existing.KidID == req.KidID && existing.Status == models.RequestPending {
				return models.ProfileChangeRequest{}, storage.ErrAlreadyExists
			}
		}
	}
	req.ID = newID(req.ID)
	req = cloneRequest(req)
	if req.Status == models.RequestApproved {
		kid.Profile = models.ApplyProfileChanges(kid.Profile, req.RequestedChanges)
		kid.UpdatedAt = req.CreatedAt
		s.users[kid.ID] = kid
	}
	s.profileChanges[req.ID] = req
	return cloneRequest(req), nil
}

func (s *Store) GetProfileChange(_ context.Context, id string) (models.ProfileChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.profileChanges[id]
	if !ok {
		return models.ProfileChangeRequest{}, storage.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *Store) FindPendingProfileChange(_ context.Context, kidID string) (models.ProfileChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.profileChanges {
		if req.KidID == kidID && req.Status == models.RequestPending {
			return cloneRequest(req), nil
		}
	}
	return models.ProfileChangeRequest{}, storage.ErrNotFound
}

func (s *Store) ListProfileChanges(_ context.Context, filter storage.ProfileChangeFilter) ([]models.ProfileChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kids := toSet(filter.KidIDs)
	var out []models.ProfileChangeRequest
	for _, req := range s.profileChanges {
		if filter.KidIDs != nil && !kids[req.KidID] {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RejectProfileChange(_ context.Context, id string, m storage.Moderation) (models.ProfileChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.profileChanges[id]
	if !ok {
		return models.ProfileChangeRequest{}, storage.ErrNotFound
	}
	if req.Status != models.RequestPending {
		return models.ProfileChangeRequest{}, storage.ErrConflict
	}
	reviewer := m.ModeratorID
	at := m.At
	req.Status = models.RequestRejected
	req.ReviewedByID = &reviewer
	req.ReviewedAt = &at
	req.Reason = m.Reason
	s.profileChanges[id] = req
	return cloneRequest(req), nil
}

func (s *Store) ApplyProfileChange(_ context.Context, id string, m storage.Moderation) (models.ProfileChangeRequest, models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.profileChanges[id]
	if !ok {
		return models.ProfileChangeRequest{}, models.User{}, storage.ErrNotFound
	}
	if req.Status != models.RequestPending {
		return models.ProfileChangeRequest{}, models.User{}, storage.ErrConflict
	}
	kid, ok := s.users[req.KidID]
	if !ok {
		return models.ProfileChangeRequest{}, models.User{}, storage.ErrNotFound
	}
	reviewer := m.ModeratorID
	at := m.At
	req.Status = models.RequestApproved
	req.ReviewedByID = &reviewer
	req.ReviewedAt = &at
	req.Reason = m.Reason
	kid.Profile = models.ApplyProfileChanges(kid.Profile, req.RequestedChanges)
	kid.UpdatedAt = at
	s.profileChanges[id] = req
	s.users[kid.ID] = kid
	return cloneRequest(req), kid, nil
}

func (s *Store) DeleteReviewedProfileChangesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, req := range s.profileChanges {
		if req.Status == models.RequestApproved && req.ReviewedAt != nil && req.ReviewedAt.Before(cutoff) {
			delete(s.profileChanges, id)
			n++
		}
	}
	return n, nil
}

func cloneRequest(req models.ProfileChangeRequest) models.ProfileChangeRequest {
	req.RequestedChanges = cloneMap(req.RequestedChanges)
	req.CurrentProfile = cloneMap(req.CurrentProfile)
	return req
}

func cloneMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
