package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"laddermatch/internal/cache"
	"laddermatch/internal/store"
)

const (
	// DefaultTTL is the cache expiry for a materialized leaderboard.
	DefaultTTL = 180 * time.Second

	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 100
)

// Result is what the read path always returns. Stale means the data came
// from a durable backup (or nowhere) instead of the live source.
type Result struct {
	Entries []store.LeaderboardEntry `json:"data"`
	Stale   bool                     `json:"isStale"`
}

// Service serves ranked player lists with bounded staleness. The cache is
// strictly a derived, rebuildable view; cache absence is never treated as
// data absence, and the read path never returns an error.
type Service struct {
	cache  cache.Cache
	source RankingSource
	store  store.Store
	log    *logrus.Logger
	ttl    time.Duration

	group singleflight.Group
}

func NewService(c cache.Cache, src RankingSource, st store.Store, log *logrus.Logger) *Service {
	return &Service{
		cache:  c,
		source: src,
		store:  st,
		log:    log,
		ttl:    DefaultTTL,
	}
}

func listKey(queueID string) string { return "leaderboard:" + queueID }
func rankKey(queueID string) string { return "leaderboard:" + queueID + ":ranks" }

// GetLeaderboard returns the ranked list for a queue. Cache hit, then
// refresh, then latest backup, then empty; never an error.
func (s *Service) GetLeaderboard(ctx context.Context, queueID string) Result {
	data, err := s.cache.Get(ctx, listKey(queueID))
	if err == nil {
		var entries []store.LeaderboardEntry
		if jsonErr := json.Unmarshal(data, &entries); jsonErr == nil {
			return Result{Entries: entries}
		}
		s.log.WithField("queue", queueID).Warn("corrupt leaderboard cache entry, refreshing")
	} else if !errors.Is(err, cache.ErrMiss) {
		s.log.WithError(err).WithField("queue", queueID).Debug("leaderboard cache read failed")
	}

	return s.RefreshLeaderboard(ctx, queueID)
}

// RefreshLeaderboard fetches the authoritative ranking, rewrites the cache
// and durable backup records, and returns the fresh list. Concurrent
// refreshes for the same queue collapse into one fetch. On failure it falls
// back to the latest backup.
func (s *Service) RefreshLeaderboard(ctx context.Context, queueID string) Result {
	v, err, _ := s.group.Do(queueID, func() (interface{}, error) {
		return s.refresh(ctx, queueID)
	})
	if err != nil {
		s.log.WithError(err).WithField("queue", queueID).Warn("leaderboard refresh failed, serving backup")
		return s.fallback(ctx, queueID)
	}
	return Result{Entries: v.([]store.LeaderboardEntry)}
}

func (s *Service) refresh(ctx context.Context, queueID string) ([]store.LeaderboardEntry, error) {
	entries, err := s.source.Fetch(ctx, queueID)
	if err != nil {
		return nil, err
	}
	rank(entries)

	// Cache and backup writes are best-effort; a failure here leaves the
	// cache stale but the durable store is already authoritative.
	if data, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, listKey(queueID), data, s.ttl); err != nil {
			s.log.WithError(err).WithField("queue", queueID).Debug("leaderboard cache write failed")
		}
	}
	fields := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if data, err := json.Marshal(e); err == nil {
			fields[e.ID] = data
		}
	}
	if err := s.cache.HSet(ctx, rankKey(queueID), fields, s.ttl); err != nil {
		s.log.WithError(err).WithField("queue", queueID).Debug("rank cache write failed")
	}

	if err := s.store.SaveSnapshot(ctx, queueID, entries); err != nil {
		s.log.WithError(err).WithField("queue", queueID).Warn("failed to persist leaderboard snapshot")
	}
	if err := s.store.SaveLatestBackup(ctx, queueID, entries); err != nil {
		s.log.WithError(err).WithField("queue", queueID).Warn("failed to persist leaderboard backup")
	}

	return entries, nil
}

func (s *Service) fallback(ctx context.Context, queueID string) Result {
	backup, err := s.store.GetLatestBackup(ctx, queueID)
	if err != nil {
		s.log.WithError(err).WithField("queue", queueID).Error("leaderboard backup read failed")
		return Result{Entries: []store.LeaderboardEntry{}, Stale: true}
	}
	if backup == nil {
		return Result{Entries: []store.LeaderboardEntry{}, Stale: true}
	}
	return Result{Entries: backup, Stale: true}
}

// GetUserRank returns a single player's leaderboard entry. Cache-first; on
// miss it refreshes the full list and extracts the entry, which also covers
// the backup path. Returns nil only if the player is absent from every
// source; stale mirrors where the data came from.
func (s *Service) GetUserRank(ctx context.Context, queueID, userID string) (entry *store.LeaderboardEntry, stale bool) {
	if data, err := s.cache.HGet(ctx, rankKey(queueID), userID); err == nil {
		var e store.LeaderboardEntry
		if json.Unmarshal(data, &e) == nil {
			return &e, false
		}
	}

	res := s.RefreshLeaderboard(ctx, queueID)
	for i := range res.Entries {
		if res.Entries[i].ID == userID {
			return &res.Entries[i], res.Stale
		}
	}
	return nil, res.Stale
}

// Invalidate drops the cached view for a queue so the next read rebuilds
// it. Best-effort; failures only delay the rebuild until TTL expiry.
func (s *Service) Invalidate(ctx context.Context, queueID string) {
	if err := s.cache.Del(ctx, listKey(queueID)); err != nil {
		s.log.WithError(err).WithField("queue", queueID).Debug("leaderboard invalidation failed")
	}
	if err := s.cache.Del(ctx, rankKey(queueID)); err != nil {
		s.log.WithError(err).WithField("queue", queueID).Debug("rank invalidation failed")
	}
}

// Snapshots returns historical snapshots, most recent first. limit is
// clamped to a sane bound.
func (s *Service) Snapshots(ctx context.Context, queueID string, limit int) ([]store.LeaderboardSnapshot, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	if limit > maxSnapshotLimit {
		limit = maxSnapshotLimit
	}
	return s.store.ListSnapshots(ctx, queueID, limit)
}

// SeasonLeaderboard returns the most recent snapshot taken inside the date
// window. It is a read-only point-in-time view: no cache, no refresh.
func (s *Service) SeasonLeaderboard(ctx context.Context, queueID string, from, to time.Time) (*store.LeaderboardSnapshot, error) {
	return s.store.GetSnapshotInWindow(ctx, queueID, from, to)
}

// rank sorts entries by rating descending and assigns 1-based positions.
// Ranks are always recomputed here and never trusted from a stored value.
func rank(entries []store.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Rating != entries[j].Rating {
			return entries[i].Rating > entries[j].Rating
		}
		return entries[i].ID < entries[j].ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
