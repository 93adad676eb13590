package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database, applies pragmas and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertPlayer creates or updates a player.
func (s *SQLiteStore) UpsertPlayer(ctx context.Context, player *Player) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO players (id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 	name = excluded.name,
		 	updated_at = excluded.updated_at`,
		player.ID, player.Name, player.CreatedAt, player.UpdatedAt,
	)
	return err
}

// GetPlayer retrieves a player by ID.
func (s *SQLiteStore) GetPlayer(ctx context.Context, playerID string) (*Player, error) {
	var p Player
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM players WHERE id = ?`,
		playerID).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetRating retrieves a player's rating for a game mode, or nil if the
// player has not played that mode yet.
func (s *SQLiteStore) GetRating(ctx context.Context, playerID, gameMode string) (*Rating, error) {
	var r Rating
	err := s.db.QueryRowContext(ctx,
		`SELECT player_id, game_mode, rating, games_played, wins, losses, draws, peak_rating, last_played
		 FROM ratings WHERE player_id = ? AND game_mode = ?`,
		playerID, gameMode).Scan(
		&r.PlayerID, &r.GameMode, &r.Rating, &r.GamesPlayed,
		&r.Wins, &r.Losses, &r.Draws, &r.PeakRating, &r.LastPlayed,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRatings returns all ratings for a game mode, highest first.
func (s *SQLiteStore) ListRatings(ctx context.Context, gameMode string) ([]Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, game_mode, rating, games_played, wins, losses, draws, peak_rating, last_played
		 FROM ratings WHERE game_mode = ?
		 ORDER BY rating DESC, player_id`, gameMode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.PlayerID, &r.GameMode, &r.Rating, &r.GamesPlayed,
			&r.Wins, &r.Losses, &r.Draws, &r.PeakRating, &r.LastPlayed); err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// CreateQueueEntry inserts a new waiting entry.
func (s *SQLiteStore) CreateQueueEntry(ctx context.Context, playerID, gameMode string, joinedAt time.Time) (*QueueEntry, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_entries (player_id, game_mode, joined_at, status)
		 VALUES (?, ?, ?, ?)`,
		playerID, gameMode, joinedAt, QueueStatusWaiting,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &QueueEntry{
		ID:       id,
		PlayerID: playerID,
		GameMode: gameMode,
		JoinedAt: joinedAt,
		Status:   QueueStatusWaiting,
	}, nil
}

// GetWaitingEntry returns the player's waiting entry, or nil if none.
func (s *SQLiteStore) GetWaitingEntry(ctx context.Context, playerID string) (*QueueEntry, error) {
	var e QueueEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, player_id, game_mode, joined_at, status, match_id
		 FROM queue_entries WHERE player_id = ? AND status = ?`,
		playerID, QueueStatusWaiting).Scan(
		&e.ID, &e.PlayerID, &e.GameMode, &e.JoinedAt, &e.Status, &e.MatchID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListWaitingEntries returns waiting entries for a game mode in FIFO order,
// ties broken by entry id.
func (s *SQLiteStore) ListWaitingEntries(ctx context.Context, gameMode string, limit int) ([]QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, player_id, game_mode, joined_at, status, match_id
		 FROM queue_entries
		 WHERE game_mode = ? AND status = ?
		 ORDER BY joined_at, id
		 LIMIT ?`, gameMode, QueueStatusWaiting, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.GameMode, &e.JoinedAt, &e.Status, &e.MatchID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CancelQueueEntry transitions a waiting entry to cancelled.
func (s *SQLiteStore) CancelQueueEntry(ctx context.Context, entryID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_entries SET status = ? WHERE id = ? AND status = ?`,
		QueueStatusCancelled, entryID, QueueStatusWaiting)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

// ListQueueEntries returns all waiting entries joined with player names,
// ordered by join time ascending.
func (s *SQLiteStore) ListQueueEntries(ctx context.Context) ([]QueueEntryInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, q.player_id, q.game_mode, q.joined_at, q.status, q.match_id, p.name
		 FROM queue_entries q
		 LEFT JOIN players p ON q.player_id = p.id
		 WHERE q.status = ?
		 ORDER BY q.joined_at, q.id`, QueueStatusWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntryInfo
	for rows.Next() {
		var e QueueEntryInfo
		var name sql.NullString
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.GameMode, &e.JoinedAt, &e.Status, &e.MatchID, &name); err != nil {
			return nil, err
		}
		e.PlayerName = name.String
		if e.PlayerName == "" {
			e.PlayerName = e.PlayerID
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PairEntries creates the match and marks both entries matched in a single
// transaction. The game number comes from an atomic counter update, so two
// concurrent pairings can never allocate the same number or claim the same
// entry: the status guard on each UPDATE makes the second pairing fail with
// ErrConflict instead.
func (s *SQLiteStore) PairEntries(ctx context.Context, match *Match, entry1ID, entry2ID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var gameNumber int64
	err = tx.QueryRowContext(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'game_number' RETURNING value`,
	).Scan(&gameNumber)
	if err != nil {
		return fmt.Errorf("failed to allocate game number: %w", err)
	}
	match.GameNumber = gameNumber

	_, err = tx.ExecContext(ctx,
		`INSERT INTO matches (id, game_mode, player1_id, player2_id, game_number, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		match.ID, match.GameMode, match.Player1ID, match.Player2ID,
		match.GameNumber, match.Status, match.StartedAt,
	)
	if err != nil {
		return err
	}

	for _, entryID := range []int64{entry1ID, entry2ID} {
		res, err := tx.ExecContext(ctx,
			`UPDATE queue_entries SET status = ?, match_id = ? WHERE id = ? AND status = ?`,
			QueueStatusMatched, match.ID, entryID, QueueStatusWaiting)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConflict
		}
	}

	return tx.Commit()
}

// GetMatch retrieves a match by ID, or nil if it does not exist.
func (s *SQLiteStore) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	var m Match
	err := s.db.QueryRowContext(ctx,
		`SELECT id, game_mode, player1_id, player2_id, game_number, status, started_at, completed_at, winner_id
		 FROM matches WHERE id = ?`, matchID).Scan(
		&m.ID, &m.GameMode, &m.Player1ID, &m.Player2ID, &m.GameNumber,
		&m.Status, &m.StartedAt, &m.CompletedAt, &m.WinnerID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMatchDetail retrieves a match joined with player and winner names.
func (s *SQLiteStore) GetMatchDetail(ctx context.Context, matchID string) (*MatchDetail, error) {
	var d MatchDetail
	var p1Name, p2Name, winnerName sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT m.id, m.game_mode, m.player1_id, m.player2_id, m.game_number,
		        m.status, m.started_at, m.completed_at, m.winner_id,
		        p1.name, p2.name, w.name
		 FROM matches m
		 LEFT JOIN players p1 ON m.player1_id = p1.id
		 LEFT JOIN players p2 ON m.player2_id = p2.id
		 LEFT JOIN players w ON m.winner_id = w.id
		 WHERE m.id = ?`, matchID).Scan(
		&d.ID, &d.GameMode, &d.Player1ID, &d.Player2ID, &d.GameNumber,
		&d.Status, &d.StartedAt, &d.CompletedAt, &d.WinnerID,
		&p1Name, &p2Name, &winnerName,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Player1Name = p1Name.String
	d.Player2Name = p2Name.String
	if winnerName.Valid {
		n := winnerName.String
		d.WinnerName = &n
	}
	return &d, nil
}

// ListActiveMatches returns in-progress matches, most recent first.
func (s *SQLiteStore) ListActiveMatches(ctx context.Context) ([]Match, error) {
	return s.listMatches(ctx,
		`SELECT id, game_mode, player1_id, player2_id, game_number, status, started_at, completed_at, winner_id
		 FROM matches WHERE status = ?
		 ORDER BY started_at DESC, game_number DESC`, MatchStatusInProgress)
}

// ListPlayerMatches returns all matches involving a player, most recent first.
func (s *SQLiteStore) ListPlayerMatches(ctx context.Context, playerID string) ([]Match, error) {
	return s.listMatches(ctx,
		`SELECT id, game_mode, player1_id, player2_id, game_number, status, started_at, completed_at, winner_id
		 FROM matches WHERE player1_id = ? OR player2_id = ?
		 ORDER BY started_at DESC, game_number DESC`, playerID, playerID)
}

func (s *SQLiteStore) listMatches(ctx context.Context, query string, args ...interface{}) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.GameMode, &m.Player1ID, &m.Player2ID, &m.GameNumber,
			&m.Status, &m.StartedAt, &m.CompletedAt, &m.WinnerID); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ApplyMatchResult completes the match and upserts both rating rows in one
// transaction. The status guard rejects a second completion with ErrConflict.
func (s *SQLiteStore) ApplyMatchResult(ctx context.Context, matchID string, winnerID *string, completedAt time.Time, r1, r2 *Rating) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE matches SET status = ?, completed_at = ?, winner_id = ?
		 WHERE id = ? AND status = ?`,
		MatchStatusCompleted, completedAt, winnerID, matchID, MatchStatusInProgress)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}

	for _, r := range []*Rating{r1, r2} {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ratings (player_id, game_mode, rating, games_played, wins, losses, draws, peak_rating, last_played)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(player_id, game_mode) DO UPDATE SET
			 	rating = excluded.rating,
			 	games_played = excluded.games_played,
			 	wins = excluded.wins,
			 	losses = excluded.losses,
			 	draws = excluded.draws,
			 	peak_rating = excluded.peak_rating,
			 	last_played = excluded.last_played`,
			r.PlayerID, r.GameMode, r.Rating, r.GamesPlayed,
			r.Wins, r.Losses, r.Draws, r.PeakRating, r.LastPlayed,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveSnapshot appends a timestamped leaderboard snapshot.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, queueID string, entries []LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leaderboard_snapshots (queue_id, created_at, data) VALUES (?, ?, ?)`,
		queueID, time.Now(), string(data))
	return err
}

// SaveLatestBackup overwrites the single fallback record for a queue.
func (s *SQLiteStore) SaveLatestBackup(ctx context.Context, queueID string, entries []LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leaderboard_backups (queue_id, updated_at, data)
		 VALUES (?, ?, ?)
		 ON CONFLICT(queue_id) DO UPDATE SET
		 	updated_at = excluded.updated_at,
		 	data = excluded.data`,
		queueID, time.Now(), string(data))
	return err
}

// GetLatestBackup returns the fallback record for a queue, or nil if none.
func (s *SQLiteStore) GetLatestBackup(ctx context.Context, queueID string) ([]LeaderboardEntry, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM leaderboard_backups WHERE queue_id = ?`, queueID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []LeaderboardEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListSnapshots returns snapshots for a queue, most recent first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, queueID string, limit int) ([]LeaderboardSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, queue_id, created_at, data
		 FROM leaderboard_snapshots
		 WHERE queue_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, queueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []LeaderboardSnapshot
	for rows.Next() {
		var snap LeaderboardSnapshot
		var data string
		if err := rows.Scan(&snap.ID, &snap.QueueID, &snap.CreatedAt, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &snap.Entries); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// GetSnapshotInWindow returns the most recent snapshot taken inside the
// given window, or nil if none exists.
func (s *SQLiteStore) GetSnapshotInWindow(ctx context.Context, queueID string, from, to time.Time) (*LeaderboardSnapshot, error) {
	var snap LeaderboardSnapshot
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, queue_id, created_at, data
		 FROM leaderboard_snapshots
		 WHERE queue_id = ? AND created_at >= ? AND created_at <= ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, queueID, from, to).Scan(&snap.ID, &snap.QueueID, &snap.CreatedAt, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &snap.Entries); err != nil {
		return nil, err
	}
	return &snap, nil
}
