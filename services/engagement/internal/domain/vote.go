// Package domain holds the engagement types shared by every layer.
package domain

import (
	"fmt"
	"strings"
)

// Direction is the side a voter picks.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidDirection)
}

// VoteState is the per (target, voter) position: none, up or down.
type VoteState string

const (
	StateNone VoteState = "none"
	StateUp   VoteState = "up"
	StateDown VoteState = "down"
)

// Toggle is the single transition every ledger backend applies.
// Same direction retracts, opposite direction switches, none adds.
func (s VoteState) Toggle(d Direction) VoteState {
	want := VoteState(d)
	if s == want {
		return StateNone
	}
	return want
}

// TargetType names the kind of votable.
type TargetType string

const (
	TargetPost    TargetType = "post"
	TargetComment TargetType = "comment"
)

func ParseTargetType(s string) (TargetType, error) {
	switch TargetType(strings.ToLower(strings.TrimSpace(s))) {
	case TargetPost:
		return TargetPost, nil
	case TargetComment:
		return TargetComment, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidTarget)
}

// Target identifies one votable.
type Target struct {
	Type TargetType
	ID   string
}

func (t Target) String() string { return string(t.Type) + ":" + t.ID }

// Tally is the outcome of a vote and the read model of a votable's counters.
// UserState is the acting (or viewing) user's position.
type Tally struct {
	UpVotes   int       `json:"up_votes"`
	DownVotes int       `json:"down_votes"`
	Score     int       `json:"score"`
	UserState VoteState `json:"user_state"`
}

// NewTally derives counters from set sizes.
func NewTally(up, down int, state VoteState) Tally {
	if state == "" {
		state = StateNone
	}
	return Tally{UpVotes: up, DownVotes: down, Score: up - down, UserState: state}
}
