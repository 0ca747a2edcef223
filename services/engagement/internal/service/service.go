// Package service implements the engagement operations: voting, commenting,
// reply threads and cascade deletion.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/platform/events"
	"github.com/example/forum-platform/services/engagement/internal/domain"
	"github.com/example/forum-platform/services/engagement/internal/store"
	"github.com/example/forum-platform/services/engagement/internal/thread"
	"github.com/example/forum-platform/services/engagement/internal/users"
)

// DefaultMaxCommentLength bounds comment text in runes.
const DefaultMaxCommentLength = 10000

// Deps are the collaborators of Service. Events may be nil.
type Deps struct {
	Ledger   store.VoteLedger
	Comments store.CommentStore
	Posts    store.PostDirectory
	Users    users.Directory
	Events   *events.Publisher
	Logger   *zap.Logger
}

type Service struct {
	ledger   store.VoteLedger
	comments store.CommentStore
	posts    store.PostDirectory
	users    users.Directory
	events   *events.Publisher
	log      *zap.Logger

	maxCommentLength int
}

// Option configures a Service.
type Option func(*Service)

func WithMaxCommentLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCommentLength = n
		}
	}
}

func New(d Deps, opts ...Option) *Service {
	s := &Service{
		ledger:           d.Ledger,
		comments:         d.Comments,
		posts:            d.Posts,
		users:            d.Users,
		events:           d.Events,
		log:              d.Logger,
		maxCommentLength: DefaultMaxCommentLength,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Vote toggles voterID's vote on target: same direction retracts, the
// opposite direction switches, no prior vote adds.
func (s *Service) Vote(ctx context.Context, voterID string, target domain.Target, dir domain.Direction) (domain.Tally, error) {
	if voterID == "" {
		return domain.Tally{}, domain.ErrUnauthenticated
	}
	if err := validateTarget(target); err != nil {
		return domain.Tally{}, err
	}
	if dir != domain.Up && dir != domain.Down {
		return domain.Tally{}, domain.ErrInvalidDirection
	}

	tally, err := s.ledger.Toggle(ctx, target, voterID, dir)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("vote on %s: %w", target, err)
	}

	s.events.Publish(events.SubjectVoteToggled, "vote_toggled", voterID, map[string]any{
		"target_type": target.Type,
		"target_id":   target.ID,
		"direction":   dir,
		"user_state":  tally.UserState,
		"up_votes":    tally.UpVotes,
		"down_votes":  tally.DownVotes,
	})
	return tally, nil
}

// Tally returns target's counters and viewerID's state (none when anonymous).
func (s *Service) Tally(ctx context.Context, viewerID string, target domain.Target) (domain.Tally, error) {
	if err := validateTarget(target); err != nil {
		return domain.Tally{}, err
	}
	var err error
	switch target.Type {
	case domain.TargetPost:
		_, err = s.posts.Post(ctx, target.ID)
	case domain.TargetComment:
		_, err = s.comments.Get(ctx, target.ID)
	}
	if err != nil {
		return domain.Tally{}, err
	}

	tallies, err := s.ledger.Tallies(ctx, target.Type, []string{target.ID}, viewerID)
	if err != nil {
		return domain.Tally{}, err
	}
	return tallies[target.ID], nil
}

// AddComment attaches a comment to postID, as a reply when parentID is set.
// The result carries the author's display name when it can be resolved.
func (s *Service) AddComment(ctx context.Context, authorID, postID, text string, parentID *string) (domain.Comment, error) {
	if authorID == "" {
		return domain.Comment{}, domain.ErrUnauthenticated
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return domain.Comment{}, fmt.Errorf("%w: post id is required", domain.ErrInvalidInput)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, fmt.Errorf("%w: text must not be empty", domain.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > s.maxCommentLength {
		return domain.Comment{}, fmt.Errorf("%w: text exceeds %d characters", domain.ErrInvalidInput, s.maxCommentLength)
	}
	if parentID != nil {
		trimmed := strings.TrimSpace(*parentID)
		if trimmed == "" {
			parentID = nil
		} else {
			parentID = &trimmed
		}
	}

	post, err := s.posts.Post(ctx, postID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("post %s: %w", postID, err)
	}
	if !post.AllowsComments() {
		return domain.Comment{}, domain.ErrCommentingDisabled
	}

	c, err := s.comments.Create(ctx, domain.NewComment{
		PostID:   postID,
		AuthorID: authorID,
		Text:     text,
		ParentID: parentID,
	})
	if err != nil {
		return domain.Comment{}, err
	}
	c.AuthorName = s.displayName(ctx, authorID)

	props := map[string]any{
		"comment_id":     c.ID,
		"post_id":        c.PostID,
		"post_author_id": post.AuthorID,
	}
	if c.ParentID != nil {
		props["parent_id"] = *c.ParentID
	}
	s.events.Publish(events.SubjectCommentCreated, "comment_created", authorID, props)
	return c, nil
}

// DeleteComment removes commentID and every transitive reply. Only the
// author may delete; the whole subtree goes or nothing does.
func (s *Service) DeleteComment(ctx context.Context, requesterID, commentID string) (domain.DeleteResult, error) {
	if requesterID == "" {
		return domain.DeleteResult{}, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(commentID) == "" {
		return domain.DeleteResult{}, fmt.Errorf("%w: comment id is required", domain.ErrInvalidInput)
	}

	var postID string
	ids, err := s.comments.DeleteCascade(ctx, commentID, func(target domain.Comment, all []domain.Comment) ([]string, error) {
		if target.AuthorID != requesterID {
			return nil, domain.ErrUnauthorized
		}
		postID = target.PostID
		return thread.Subtree(all, target.ID), nil
	})
	if err != nil {
		return domain.DeleteResult{}, fmt.Errorf("delete comment %s: %w", commentID, err)
	}

	if err := s.ledger.Forget(ctx, domain.TargetComment, ids); err != nil {
		s.log.Warn("forget votes of deleted comments", zap.Strings("comment_ids", ids), zap.Error(err))
	}

	s.events.Publish(events.SubjectCommentDeleted, "comment_deleted", requesterID, map[string]any{
		"comment_id":  commentID,
		"post_id":     postID,
		"deleted_ids": ids,
	})
	return domain.DeleteResult{DeletedIDs: ids}, nil
}

// Thread returns the full reply forest of postID.
func (s *Service) Thread(ctx context.Context, viewerID, postID string) ([]domain.Node, error) {
	if _, err := s.posts.Post(ctx, postID); err != nil {
		return nil, fmt.Errorf("post %s: %w", postID, err)
	}
	all, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.decorate(ctx, all, viewerID); err != nil {
		return nil, err
	}
	return thread.Build(all), nil
}

// Replies returns the direct replies of parentID, newest first.
func (s *Service) Replies(ctx context.Context, viewerID, parentID string) ([]domain.Comment, error) {
	if _, err := s.comments.Get(ctx, parentID); err != nil {
		return nil, fmt.Errorf("comment %s: %w", parentID, err)
	}
	children, err := s.comments.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	children = thread.Children(children, parentID)
	if err := s.decorate(ctx, children, viewerID); err != nil {
		return nil, err
	}
	return children, nil
}

// decorate fills counters, viewer state and author names in place.
func (s *Service) decorate(ctx context.Context, cs []domain.Comment, viewerID string) error {
	if len(cs) == 0 {
		return nil
	}
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	tallies, err := s.ledger.Tallies(ctx, domain.TargetComment, ids, viewerID)
	if err != nil {
		return err
	}

	names := make(map[string]string)
	for i := range cs {
		cs[i].Tally = tallies[cs[i].ID]
		if cs[i].Tally.UserState == "" {
			cs[i].Tally = domain.NewTally(0, 0, domain.StateNone)
		}
		author := cs[i].AuthorID
		name, ok := names[author]
		if !ok {
			name = s.displayName(ctx, author)
			names[author] = name
		}
		cs[i].AuthorName = name
	}
	return nil
}

// displayName never fails the caller; unresolved names stay empty.
func (s *Service) displayName(ctx context.Context, userID string) string {
	if s.users == nil {
		return ""
	}
	name, err := s.users.DisplayName(ctx, userID)
	if err != nil {
		if !errors.Is(err, users.ErrUnknownUser) {
			s.log.Warn("resolve display name", zap.String("user_id", userID), zap.Error(err))
		}
		return ""
	}
	return name
}

func validateTarget(t domain.Target) error {
	if t.Type != domain.TargetPost && t.Type != domain.TargetComment {
		return domain.ErrInvalidTarget
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: target id is required", domain.ErrInvalidInput)
	}
	return nil
}
