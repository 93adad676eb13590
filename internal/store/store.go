package store

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned when a guarded multi-row update finds a row no
// longer in the expected state (entry already matched, match already
// completed). Callers decide whether to retry or surface it.
var ErrConflict = errors.New("store: conflicting state")

type Player struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rating is a player's persistent skill record for one game mode.
// Created on first match participation, mutated only by ApplyMatchResult,
// never deleted.
type Rating struct {
	PlayerID    string
	GameMode    string
	Rating      float64
	GamesPlayed int
	Wins        int
	Losses      int
	Draws       int
	PeakRating  float64
	LastPlayed  time.Time
}

const (
	QueueStatusWaiting   = "waiting"
	QueueStatusMatched   = "matched"
	QueueStatusCancelled = "cancelled"
)

// QueueEntry records a player's intent to be matched. Rows are append-only:
// waiting transitions to matched or cancelled and is immutable afterward.
type QueueEntry struct {
	ID       int64
	PlayerID string
	GameMode string
	JoinedAt time.Time
	Status   string
	MatchID  *string
}

// QueueEntryInfo joins a waiting entry with player identity for display.
type QueueEntryInfo struct {
	QueueEntry
	PlayerName string
}

const (
	MatchStatusInProgress = "in_progress"
	MatchStatusCompleted  = "completed"
	MatchStatusCancelled  = "cancelled"
)

type Match struct {
	ID          string
	GameMode    string
	Player1ID   string
	Player2ID   string
	GameNumber  int64
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	WinnerID    *string // nil on a completed match means draw
}

// MatchDetail joins a match with player and winner identity.
type MatchDetail struct {
	Match
	Player1Name string
	Player2Name string
	WinnerName  *string
}

// LeaderboardEntry is a derived row; Rank is assigned by sort order at
// materialization time and never trusted from storage.
type LeaderboardEntry struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Rating     float64 `json:"mmr"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Draws      int     `json:"draws"`
	TotalGames int     `json:"totalGames"`
	PeakRating float64 `json:"peakRating"`
	Rank       int     `json:"rank"`
	WinRate    float64 `json:"winrate"`
	GameMode   string  `json:"gameMode"`
}

// LeaderboardSnapshot is an immutable point-in-time copy of a leaderboard,
// kept both for history browsing and as a stale-fallback source.
type LeaderboardSnapshot struct {
	ID        int64
	QueueID   string
	CreatedAt time.Time
	Entries   []LeaderboardEntry
}

type Store interface {
	UpsertPlayer(ctx context.Context, player *Player) error
	GetPlayer(ctx context.Context, playerID string) (*Player, error)

	GetRating(ctx context.Context, playerID, gameMode string) (*Rating, error)
	ListRatings(ctx context.Context, gameMode string) ([]Rating, error)

	CreateQueueEntry(ctx context.Context, playerID, gameMode string, joinedAt time.Time) (*QueueEntry, error)
	GetWaitingEntry(ctx context.Context, playerID string) (*QueueEntry, error)
	ListWaitingEntries(ctx context.Context, gameMode string, limit int) ([]QueueEntry, error)
	CancelQueueEntry(ctx context.Context, entryID int64) error
	ListQueueEntries(ctx context.Context) ([]QueueEntryInfo, error)

	// PairEntries atomically allocates the next game number, creates the
	// match and marks both entries matched. match.GameNumber is filled in
	// on success.
	PairEntries(ctx context.Context, match *Match, entry1ID, entry2ID int64) error

	GetMatch(ctx context.Context, matchID string) (*Match, error)
	GetMatchDetail(ctx context.Context, matchID string) (*MatchDetail, error)
	ListActiveMatches(ctx context.Context) ([]Match, error)
	ListPlayerMatches(ctx context.Context, playerID string) ([]Match, error)

	// ApplyMatchResult atomically completes the match and upserts both
	// players' rating rows.
	ApplyMatchResult(ctx context.Context, matchID string, winnerID *string, completedAt time.Time, r1, r2 *Rating) error

	SaveSnapshot(ctx context.Context, queueID string, entries []LeaderboardEntry) error
	SaveLatestBackup(ctx context.Context, queueID string, entries []LeaderboardEntry) error
	GetLatestBackup(ctx context.Context, queueID string) ([]LeaderboardEntry, error)
	ListSnapshots(ctx context.Context, queueID string, limit int) ([]LeaderboardSnapshot, error)
	GetSnapshotInWindow(ctx context.Context, queueID string, from, to time.Time) (*LeaderboardSnapshot, error)

	Close() error
}
