package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

const (
	redisToggleRetries = 16
	// tombstones outlive any toggle that was in flight when Forget ran
	redisTombstoneTTL = time.Hour
)

// RedisVoteLedger keeps two sets per target. Toggle runs as an optimistic
// WATCH/MULTI transaction over both sets and the target's tombstone, so it
// is atomic per target and never resurrects a forgotten one.
type RedisVoteLedger struct {
	client  *redis.Client
	targets TargetChecker
	prefix  string
}

func NewRedisVoteLedger(client *redis.Client, targets TargetChecker) *RedisVoteLedger {
	return &RedisVoteLedger{client: client, targets: targets, prefix: "engagement:votes:"}
}

// keys share a hash tag so both sets land on the same cluster slot.
func (l *RedisVoteLedger) keys(typ domain.TargetType, id string) (up, down string) {
	base := l.base(typ, id)
	return base + ":up", base + ":down"
}

func (l *RedisVoteLedger) base(typ domain.TargetType, id string) string {
	return l.prefix + "{" + string(typ) + ":" + id + "}"
}

// goneKey marks a forgotten target. Toggle watches it, so a Forget that
// lands between the existence check and EXEC aborts the transaction.
func (l *RedisVoteLedger) goneKey(typ domain.TargetType, id string) string {
	return l.base(typ, id) + ":gone"
}

func (l *RedisVoteLedger) Toggle(ctx context.Context, target domain.Target, voterID string, dir domain.Direction) (domain.Tally, error) {
	upKey, downKey := l.keys(target.Type, target.ID)
	goneKey := l.goneKey(target.Type, target.ID)

	var tally domain.Tally
	var rejected error
	txf := func(tx *redis.Tx) error {
		gone, err := tx.Exists(ctx, goneKey).Result()
		if err != nil {
			return err
		}
		if gone > 0 {
			rejected = domain.ErrNotFound
			return rejected
		}
		ok, err := l.targets.TargetExists(ctx, target)
		if err == nil && !ok {
			err = domain.ErrNotFound
		}
		if err != nil {
			rejected = err
			return err
		}

		isUp, err := tx.SIsMember(ctx, upKey, voterID).Result()
		if err != nil {
			return err
		}
		isDown, err := tx.SIsMember(ctx, downKey, voterID).Result()
		if err != nil {
			return err
		}
		state := domain.StateNone
		switch {
		case isUp:
			state = domain.StateUp
		case isDown:
			state = domain.StateDown
		}
		next := state.Toggle(dir)

		var upCount, downCount *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, upKey, voterID)
			pipe.SRem(ctx, downKey, voterID)
			switch next {
			case domain.StateUp:
				pipe.SAdd(ctx, upKey, voterID)
			case domain.StateDown:
				pipe.SAdd(ctx, downKey, voterID)
			}
			upCount = pipe.SCard(ctx, upKey)
			downCount = pipe.SCard(ctx, downKey)
			return nil
		})
		if err != nil {
			return err
		}
		tally = domain.NewTally(int(upCount.Val()), int(downCount.Val()), next)
		return nil
	}

	for i := 0; i < redisToggleRetries; i++ {
		rejected = nil
		err := l.client.Watch(ctx, txf, upKey, downKey, goneKey)
		if err == nil {
			return tally, nil
		}
		if rejected != nil {
			return domain.Tally{}, rejected
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	}
	return domain.Tally{}, domain.StorageError("votes.toggle", errors.New("too many concurrent writers"))
}

func (l *RedisVoteLedger) Tallies(ctx context.Context, typ domain.TargetType, ids []string, viewerID string) (map[string]domain.Tally, error) {
	type pending struct {
		up, down     *redis.IntCmd
		isUp, isDown *redis.BoolCmd
	}
	cmds := make(map[string]pending, len(ids))
	_, err := l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			upKey, downKey := l.keys(typ, id)
			p := pending{up: pipe.SCard(ctx, upKey), down: pipe.SCard(ctx, downKey)}
			if viewerID != "" {
				p.isUp = pipe.SIsMember(ctx, upKey, viewerID)
				p.isDown = pipe.SIsMember(ctx, downKey, viewerID)
			}
			cmds[id] = p
		}
		return nil
	})
	if err != nil {
		return nil, domain.StorageError("votes.tallies", err)
	}

	out := make(map[string]domain.Tally, len(ids))
	for id, p := range cmds {
		state := domain.StateNone
		if p.isUp != nil && p.isUp.Val() {
			state = domain.StateUp
		} else if p.isDown != nil && p.isDown.Val() {
			state = domain.StateDown
		}
		out[id] = domain.NewTally(int(p.up.Val()), int(p.down.Val()), state)
	}
	return out, nil
}

// Forget drops both sets and leaves a tombstone so in-flight toggles on
// the same targets abort instead of recreating them.
func (l *RedisVoteLedger) Forget(ctx context.Context, typ domain.TargetType, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			upKey, downKey := l.keys(typ, id)
			pipe.Set(ctx, l.goneKey(typ, id), 1, redisTombstoneTTL)
			pipe.Del(ctx, upKey, downKey)
		}
		return nil
	})
	if err != nil {
		return domain.StorageError("votes.forget", err)
	}
	return nil
}
