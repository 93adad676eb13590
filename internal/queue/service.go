package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"laddermatch/internal/playerstate"
	"laddermatch/internal/rating"
	"laddermatch/internal/store"
)

// ErrMatchNotFound is returned when an operation references a match that
// does not exist.
var ErrMatchNotFound = errors.New("queue: match not found")

// Invalidator drops a derived leaderboard view after results change.
// Invalidation is best-effort; the queue never fails because of it.
type Invalidator interface {
	Invalidate(ctx context.Context, queueID string)
}

// Service owns queue membership and pairing. Pairing and game-number
// allocation are serialized per game mode: two concurrent joins for the
// same mode can never select the same waiting entries.
type Service struct {
	store  store.Store
	states *playerstate.Store
	lb     Invalidator
	log    *logrus.Logger

	mu    sync.Mutex
	modes map[string]*sync.Mutex
}

// NewService creates a matchmaking service. lb may be nil.
func NewService(st store.Store, states *playerstate.Store, lb Invalidator, log *logrus.Logger) *Service {
	return &Service{
		store:  st,
		states: states,
		lb:     lb,
		log:    log,
		modes:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) modeLock(gameMode string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.modes[gameMode]
	if !ok {
		l = &sync.Mutex{}
		s.modes[gameMode] = l
	}
	return l
}

// JoinQueue adds a player to the queue for a game mode and attempts
// pairing. If the player already has a waiting entry the existing entry is
// returned and no duplicate is created.
func (s *Service) JoinQueue(ctx context.Context, playerID, name, gameMode string) (*store.QueueEntry, error) {
	now := time.Now()

	if err := s.store.UpsertPlayer(ctx, &store.Player{
		ID:        playerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}

	if existing, err := s.store.GetWaitingEntry(ctx, playerID); err != nil {
		return nil, fmt.Errorf("failed to check queue: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	entry, err := s.store.CreateQueueEntry(ctx, playerID, gameMode, now)
	if err != nil {
		return nil, fmt.Errorf("failed to join queue: %w", err)
	}

	joinedAt := entry.JoinedAt
	s.states.Set(ctx, playerID, playerstate.State{
		Status:         playerstate.StatusQueuing,
		QueueStartTime: &joinedAt,
	})

	s.log.WithFields(logrus.Fields{
		"player": playerID,
		"mode":   gameMode,
		"entry":  entry.ID,
	}).Info("player joined queue")

	if _, err := s.MatchPlayers(ctx, gameMode); err != nil {
		// The join itself succeeded; the entry stays waiting for the
		// next pairing attempt.
		s.log.WithError(err).WithField("mode", gameMode).Warn("pairing attempt failed")
	}

	return entry, nil
}

// LeaveQueue cancels the player's waiting entry. Returns false if no
// waiting entry existed; calling it twice is a no-op, not an error.
func (s *Service) LeaveQueue(ctx context.Context, playerID string) (bool, error) {
	entry, err := s.store.GetWaitingEntry(ctx, playerID)
	if err != nil {
		return false, fmt.Errorf("failed to check queue: %w", err)
	}
	if entry == nil {
		return false, nil
	}

	if err := s.store.CancelQueueEntry(ctx, entry.ID); err != nil {
		// Lost the race with a concurrent pairing: the entry is no
		// longer waiting, so there was nothing to leave.
		if errors.Is(err, store.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("failed to leave queue: %w", err)
	}

	s.states.Set(ctx, playerID, playerstate.Idle())

	s.log.WithFields(logrus.Fields{
		"player": playerID,
		"entry":  entry.ID,
	}).Info("player left queue")

	return true, nil
}

// MatchPlayers pairs the two longest-waiting entries for a game mode into
// a match. Returns nil without error when fewer than two players wait.
func (s *Service) MatchPlayers(ctx context.Context, gameMode string) (*store.Match, error) {
	lock := s.modeLock(gameMode)
	lock.Lock()
	defer lock.Unlock()

	entries, err := s.store.ListWaitingEntries(ctx, gameMode, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}
	if len(entries) < 2 {
		return nil, nil
	}

	now := time.Now()
	match := &store.Match{
		ID:        uuid.New().String(),
		GameMode:  gameMode,
		Player1ID: entries[0].PlayerID,
		Player2ID: entries[1].PlayerID,
		Status:    store.MatchStatusInProgress,
		StartedAt: now,
	}

	if err := s.store.PairEntries(ctx, match, entries[0].ID, entries[1].ID); err != nil {
		return nil, fmt.Errorf("failed to pair entries: %w", err)
	}

	s.states.Set(ctx, match.Player1ID, playerstate.State{
		Status:       playerstate.StatusInGame,
		CurrentMatch: &playerstate.MatchRef{OpponentID: match.Player2ID, StartTime: now},
	})
	s.states.Set(ctx, match.Player2ID, playerstate.State{
		Status:       playerstate.StatusInGame,
		CurrentMatch: &playerstate.MatchRef{OpponentID: match.Player1ID, StartTime: now},
	})

	s.log.WithFields(logrus.Fields{
		"match":   match.ID,
		"game":    match.GameNumber,
		"mode":    gameMode,
		"player1": match.Player1ID,
		"player2": match.Player2ID,
	}).Info("match created")

	return match, nil
}

// CompleteMatch records the result of a match, updates both players'
// ratings and returns them to idle. winnerID nil encodes a draw.
func (s *Service) CompleteMatch(ctx context.Context, matchID string, winnerID *string) (*store.Match, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	if match.Status != store.MatchStatusInProgress {
		return nil, fmt.Errorf("match %s already %s: %w", matchID, match.Status, store.ErrConflict)
	}

	// Result relative to player1.
	var score1 float64
	switch {
	case winnerID == nil:
		score1 = rating.ScoreDraw
	case *winnerID == match.Player1ID:
		score1 = rating.ScoreWin
	case *winnerID == match.Player2ID:
		score1 = rating.ScoreLoss
	default:
		return nil, fmt.Errorf("winner %s is not in match %s", *winnerID, matchID)
	}

	now := time.Now()
	r1, err := s.loadOrInitRating(ctx, match.Player1ID, match.GameMode)
	if err != nil {
		return nil, err
	}
	r2, err := s.loadOrInitRating(ctx, match.Player2ID, match.GameMode)
	if err != nil {
		return nil, err
	}

	expected1 := rating.ExpectedScore(r1.Rating, r2.Rating)
	expected2 := rating.ExpectedScore(r2.Rating, r1.Rating)
	applyResult(r1, expected1, score1, now)
	applyResult(r2, expected2, 1-score1, now)

	if err := s.store.ApplyMatchResult(ctx, matchID, winnerID, now, r1, r2); err != nil {
		return nil, fmt.Errorf("failed to apply match result: %w", err)
	}

	s.states.Set(ctx, match.Player1ID, playerstate.Idle())
	s.states.Set(ctx, match.Player2ID, playerstate.Idle())

	if s.lb != nil {
		s.lb.Invalidate(ctx, match.GameMode)
	}

	match.Status = store.MatchStatusCompleted
	match.CompletedAt = &now
	match.WinnerID = winnerID

	s.log.WithFields(logrus.Fields{
		"match":   matchID,
		"mode":    match.GameMode,
		"rating1": r1.Rating,
		"rating2": r2.Rating,
	}).Info("match completed")

	return match, nil
}

func (s *Service) loadOrInitRating(ctx context.Context, playerID, gameMode string) (*store.Rating, error) {
	r, err := s.store.GetRating(ctx, playerID, gameMode)
	if err != nil {
		return nil, fmt.Errorf("failed to load rating: %w", err)
	}
	if r == nil {
		r = &store.Rating{
			PlayerID:   playerID,
			GameMode:   gameMode,
			Rating:     rating.DefaultRating,
			PeakRating: rating.DefaultRating,
		}
	}
	return r, nil
}

// applyResult folds one result into a rating row. The K-factor is chosen
// from the games played before this match.
func applyResult(r *store.Rating, expected, actual float64, playedAt time.Time) {
	r.Rating = rating.NewRating(r.Rating, expected, actual, r.GamesPlayed)
	r.GamesPlayed++
	switch actual {
	case rating.ScoreWin:
		r.Wins++
	case rating.ScoreDraw:
		r.Draws++
	default:
		r.Losses++
	}
	if r.Rating > r.PeakRating {
		r.PeakRating = r.Rating
	}
	r.LastPlayed = playedAt
}

// QueueEntries returns all waiting entries with player identity, ordered
// by join time ascending.
func (s *Service) QueueEntries(ctx context.Context) ([]store.QueueEntryInfo, error) {
	return s.store.ListQueueEntries(ctx)
}

// ActiveMatches returns in-progress matches, most recent first.
func (s *Service) ActiveMatches(ctx context.Context) ([]store.Match, error) {
	return s.store.ListActiveMatches(ctx)
}

// PlayerMatches returns all matches involving a player, most recent first.
func (s *Service) PlayerMatches(ctx context.Context, playerID string) ([]store.Match, error) {
	return s.store.ListPlayerMatches(ctx, playerID)
}

// Match returns a single match with player and winner identity.
func (s *Service) Match(ctx context.Context, matchID string) (*store.MatchDetail, error) {
	detail, err := s.store.GetMatchDetail(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	if detail == nil {
		return nil, ErrMatchNotFound
	}
	return detail, nil
}

// PlayerState returns the player's current transient state.
func (s *Service) PlayerState(playerID string) playerstate.State {
	return s.states.Get(playerID)
}
