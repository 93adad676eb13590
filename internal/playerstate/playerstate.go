package playerstate

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusQueuing Status = "queuing"
	StatusInGame  Status = "in_game"
)

// MatchRef points a player at their current opponent.
type MatchRef struct {
	OpponentID string    `json:"opponentId"`
	StartTime  time.Time `json:"startTime"`
}

// State is a player's transient activity state. It is overwritten on every
// transition and is acceptable to lose; the durable store stays
// authoritative for queue and match status.
type State struct {
	Status         Status     `json:"status"`
	QueueStartTime *time.Time `json:"queueStartTime,omitempty"`
	CurrentMatch   *MatchRef  `json:"currentMatch,omitempty"`
}

// Idle is the default state for players with no recorded activity.
func Idle() State {
	return State{Status: StatusIdle}
}

// Publisher receives state-change events. Publishing is fire-and-forget:
// implementations must not block and their failures must not affect the
// transition itself. Consumers poll current state as ground truth and
// tolerate missed intermediate states.
type Publisher interface {
	Publish(ctx context.Context, playerID string, state State)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, State) {}

// Store is an in-memory keyed cache of player activity states. Per-player
// updates are last-write-wins; there is no ordering guarantee across
// different players.
type Store struct {
	mu     sync.RWMutex
	states map[string]State
	pub    Publisher
}

// NewStore creates a state store publishing transitions through pub.
func NewStore(pub Publisher) *Store {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Store{
		states: make(map[string]State),
		pub:    pub,
	}
}

// Set overwrites the player's state and publishes the transition.
func (s *Store) Set(ctx context.Context, playerID string, state State) {
	s.mu.Lock()
	s.states[playerID] = state
	s.mu.Unlock()

	s.pub.Publish(ctx, playerID, state)
}

// Get returns the player's current state, or idle if none is recorded.
func (s *Store) Get(playerID string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[playerID]
	if !ok {
		return Idle()
	}
	return state
}
