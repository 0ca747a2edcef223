// Package worker applies engagement commands submitted over NATS JetStream.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/forum-platform/services/engagement/internal/domain"
	"github.com/example/forum-platform/services/engagement/internal/idempotency"
)

// Stream and subjects of the command intake.
const (
	CommandStream   = "ENGAGEMENT_COMMANDS"
	SubjectCommands = "engagement.commands.>"
	subjectPrefix   = "engagement.commands."
	durableName     = "engagement_commands"

	releaseTimeout = 5 * time.Second
)

// VoteCommand is the payload of engagement.commands.vote.
type VoteCommand struct {
	EventID    string `json:"event_id"`
	UserID     string `json:"user_id"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Direction  string `json:"direction"`
}

// CreateCommentCommand is the payload of engagement.commands.comment.create.
type CreateCommentCommand struct {
	EventID  string  `json:"event_id"`
	UserID   string  `json:"user_id"`
	PostID   string  `json:"post_id"`
	ParentID *string `json:"parent_id,omitempty"`
	Text     string  `json:"text"`
}

// DeleteCommentCommand is the payload of engagement.commands.comment.delete.
type DeleteCommentCommand struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	CommentID string `json:"comment_id"`
}

// Engagement is the subset of the service the consumer drives.
type Engagement interface {
	Vote(ctx context.Context, voterID string, target domain.Target, dir domain.Direction) (domain.Tally, error)
	AddComment(ctx context.Context, authorID, postID, text string, parentID *string) (domain.Comment, error)
	DeleteComment(ctx context.Context, requesterID, commentID string) (domain.DeleteResult, error)
}

// Options tunes the fetch loop. Zero values use defaults.
type Options struct {
	BatchSize     int
	BatchInterval time.Duration
}

type CommandConsumer struct {
	svc  Engagement
	seen idempotency.Store
	log  *zap.Logger
	opts Options
}

func NewCommandConsumer(svc Engagement, seen idempotency.Store, log *zap.Logger, opts Options) *CommandConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = 2 * time.Second
	}
	return &CommandConsumer{svc: svc, seen: seen, log: log, opts: opts}
}

// Start subscribes to engagement.commands.> and processes batches until ctx
// is cancelled. The returned channel closes when the loop exits.
func (c *CommandConsumer) Start(ctx context.Context, js nats.JetStreamContext) (<-chan struct{}, error) {
	sub, err := js.PullSubscribe(SubjectCommands, durableName)
	if err != nil {
		return nil, fmt.Errorf("commands consumer: subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = sub.Drain() }()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(c.opts.BatchSize, nats.MaxWait(c.opts.BatchInterval))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				c.log.Warn("commands consumer: fetch", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, m := range msgs {
				if err := c.Handle(ctx, m.Subject, m.Data); err != nil {
					c.log.Warn("commands consumer: redeliver",
						zap.String("subject", m.Subject), zap.Error(err))
					if nerr := m.Nak(); nerr != nil {
						c.log.Warn("commands consumer: nak", zap.Error(nerr))
					}
					continue
				}
				if aerr := m.Ack(); aerr != nil {
					c.log.Warn("commands consumer: ack", zap.Error(aerr))
				}
			}
		}
	}()
	return done, nil
}

// Handle applies one command. A nil return means the message is settled:
// applied, a duplicate, malformed, or rejected by a domain rule. Only
// transient failures are returned, and those release the event id so the
// redelivery is not mistaken for a duplicate.
func (c *CommandConsumer) Handle(ctx context.Context, subject string, data []byte) error {
	action := strings.TrimPrefix(subject, subjectPrefix)

	var envelope struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.EventID == "" {
		c.log.Warn("commands consumer: dropping malformed command",
			zap.String("subject", subject), zap.Error(err))
		return nil
	}

	dup, err := c.seen.Check(ctx, envelope.EventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if dup {
		c.log.Debug("commands consumer: duplicate", zap.String("event_id", envelope.EventID))
		return nil
	}

	err = c.dispatch(ctx, action, data)
	switch {
	case err == nil:
		return nil
	case isPermanent(err):
		c.log.Info("commands consumer: rejected",
			zap.String("subject", subject),
			zap.String("event_id", envelope.EventID),
			zap.Error(err))
		return nil
	default:
		// shutdown cancels ctx mid-command; the release must still land
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if rerr := c.seen.Release(rctx, envelope.EventID); rerr != nil {
			c.log.Warn("commands consumer: release event id", zap.String("event_id", envelope.EventID), zap.Error(rerr))
		}
		return err
	}
}

func (c *CommandConsumer) dispatch(ctx context.Context, action string, data []byte) error {
	switch action {
	case "vote":
		var cmd VoteCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		typ, err := domain.ParseTargetType(cmd.TargetType)
		if err != nil {
			return err
		}
		dir, err := domain.ParseDirection(cmd.Direction)
		if err != nil {
			return err
		}
		_, err = c.svc.Vote(ctx, cmd.UserID, domain.Target{Type: typ, ID: cmd.TargetID}, dir)
		return err
	case "comment.create":
		var cmd CreateCommentCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		_, err := c.svc.AddComment(ctx, cmd.UserID, cmd.PostID, cmd.Text, cmd.ParentID)
		return err
	case "comment.delete":
		var cmd DeleteCommentCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		_, err := c.svc.DeleteComment(ctx, cmd.UserID, cmd.CommentID)
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", domain.ErrInvalidInput, action)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrUnauthenticated) ||
		errors.Is(err, domain.ErrCommentingDisabled)
}
