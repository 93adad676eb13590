package leaderboard

import (
	"context"

	"laddermatch/internal/store"
)

// RankingSource fetches the authoritative ordered ranking for a queue.
// Implementations may be remote; their failures are absorbed by the
// service's fallback path and never reach callers.
type RankingSource interface {
	Fetch(ctx context.Context, queueID string) ([]store.LeaderboardEntry, error)
}

// StoreSource builds the ranking from the ratings table. The queue ID is
// the game mode the ratings are partitioned by.
type StoreSource struct {
	store store.Store
}

func NewStoreSource(s store.Store) *StoreSource {
	return &StoreSource{store: s}
}

func (s *StoreSource) Fetch(ctx context.Context, queueID string) ([]store.LeaderboardEntry, error) {
	ratings, err := s.store.ListRatings(ctx, queueID)
	if err != nil {
		return nil, err
	}

	entries := make([]store.LeaderboardEntry, 0, len(ratings))
	for _, r := range ratings {
		name := r.PlayerID
		if p, err := s.store.GetPlayer(ctx, r.PlayerID); err == nil && p != nil {
			name = p.Name
		}

		e := store.LeaderboardEntry{
			ID:         r.PlayerID,
			Name:       name,
			Rating:     r.Rating,
			Wins:       r.Wins,
			Losses:     r.Losses,
			Draws:      r.Draws,
			TotalGames: r.GamesPlayed,
			PeakRating: r.PeakRating,
			GameMode:   r.GameMode,
		}
		if e.TotalGames > 0 {
			e.WinRate = float64(e.Wins) / float64(e.TotalGames) * 100
		}
		entries = append(entries, e)
	}
	return entries, nil
}
