package store

import (
	"context"
	"sync"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

type memoryVotes struct {
	mu   sync.Mutex
	up   map[string]struct{}
	down map[string]struct{}
}

func (v *memoryVotes) state(voterID string) domain.VoteState {
	if _, ok := v.up[voterID]; ok {
		return domain.StateUp
	}
	if _, ok := v.down[voterID]; ok {
		return domain.StateDown
	}
	return domain.StateNone
}

// InMemoryVoteLedger is a development-only ledger. Each target has its own
// lock; the outer lock only guards the target map.
type InMemoryVoteLedger struct {
	targets TargetChecker

	mu    sync.Mutex
	votes map[domain.Target]*memoryVotes
}

func NewInMemoryVoteLedger(targets TargetChecker) *InMemoryVoteLedger {
	return &InMemoryVoteLedger{
		targets: targets,
		votes:   make(map[domain.Target]*memoryVotes),
	}
}

func (l *InMemoryVoteLedger) entry(t domain.Target, create bool) *memoryVotes {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.votes[t]
	if !ok && create {
		v = &memoryVotes{up: make(map[string]struct{}), down: make(map[string]struct{})}
		l.votes[t] = v
	}
	return v
}

// Toggle checks existence under the target lock, so a toggle that loses a
// race with a delete cannot recreate sets after Forget has dropped them.
func (l *InMemoryVoteLedger) Toggle(ctx context.Context, target domain.Target, voterID string, dir domain.Direction) (domain.Tally, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tally{}, err
	}

	v := l.entry(target, true)
	v.mu.Lock()
	defer v.mu.Unlock()

	ok, err := l.targets.TargetExists(ctx, target)
	if err == nil && !ok {
		err = domain.ErrNotFound
	}
	if err != nil {
		l.dropIfEmpty(target, v)
		return domain.Tally{}, err
	}

	next := v.state(voterID).Toggle(dir)
	delete(v.up, voterID)
	delete(v.down, voterID)
	switch next {
	case domain.StateUp:
		v.up[voterID] = struct{}{}
	case domain.StateDown:
		v.down[voterID] = struct{}{}
	}
	return domain.NewTally(len(v.up), len(v.down), next), nil
}

// dropIfEmpty removes v from the map when it is still the mapped entry and
// holds no votes. v.mu must be held.
func (l *InMemoryVoteLedger) dropIfEmpty(t domain.Target, v *memoryVotes) {
	if len(v.up) > 0 || len(v.down) > 0 {
		return
	}
	l.mu.Lock()
	if l.votes[t] == v {
		delete(l.votes, t)
	}
	l.mu.Unlock()
}

func (l *InMemoryVoteLedger) Tallies(_ context.Context, typ domain.TargetType, ids []string, viewerID string) (map[string]domain.Tally, error) {
	out := make(map[string]domain.Tally, len(ids))
	for _, id := range ids {
		v := l.entry(domain.Target{Type: typ, ID: id}, false)
		if v == nil {
			out[id] = domain.NewTally(0, 0, domain.StateNone)
			continue
		}
		v.mu.Lock()
		state := domain.StateNone
		if viewerID != "" {
			state = v.state(viewerID)
		}
		out[id] = domain.NewTally(len(v.up), len(v.down), state)
		v.mu.Unlock()
	}
	return out, nil
}

func (l *InMemoryVoteLedger) Forget(_ context.Context, typ domain.TargetType, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.votes, domain.Target{Type: typ, ID: id})
	}
	return nil
}
