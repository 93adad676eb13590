package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addPlayer(t *testing.T, s *SQLiteStore, id, name string) {
	t.Helper()
	now := time.Now()
	if err := s.UpsertPlayer(context.Background(), &Player{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("failed to upsert player %s: %v", id, err)
	}
}

func TestQueueEntryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addPlayer(t, s, "p1", "Alice")

	entry, err := s.CreateQueueEntry(ctx, "p1", "1v1", time.Now())
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if entry.Status != QueueStatusWaiting {
		t.Errorf("status = %q, want waiting", entry.Status)
	}

	got, err := s.GetWaitingEntry(ctx, "p1")
	if err != nil {
		t.Fatalf("get waiting entry: %v", err)
	}
	if got == nil || got.ID != entry.ID {
		t.Fatalf("waiting entry = %+v, want id %d", got, entry.ID)
	}

	if err := s.CancelQueueEntry(ctx, entry.ID); err != nil {
		t.Fatalf("cancel entry: %v", err)
	}

	// Terminal states are immutable; a second cancel conflicts.
	if err := s.CancelQueueEntry(ctx, entry.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("second cancel = %v, want ErrConflict", err)
	}

	got, err = s.GetWaitingEntry(ctx, "p1")
	if err != nil {
		t.Fatalf("get waiting entry: %v", err)
	}
	if got != nil {
		t.Errorf("waiting entry after cancel = %+v, want nil", got)
	}
}

func TestOneWaitingEntryPerPlayer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addPlayer(t, s, "p1", "Alice")

	if _, err := s.CreateQueueEntry(ctx, "p1", "1v1", time.Now()); err != nil {
		t.Fatalf("first entry: %v", err)
	}
	if _, err := s.CreateQueueEntry(ctx, "p1", "1v1", time.Now()); err == nil {
		t.Error("second waiting entry for same player was accepted")
	}
}

func TestPairEntriesAllocatesMonotonicGameNumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var lastGameNumber int64
	for i := 0; i < 3; i++ {
		p1 := "a" + string(rune('0'+i))
		p2 := "b" + string(rune('0'+i))
		addPlayer(t, s, p1, p1)
		addPlayer(t, s, p2, p2)

		e1, err := s.CreateQueueEntry(ctx, p1, "1v1", time.Now())
		if err != nil {
			t.Fatalf("entry 1: %v", err)
		}
		e2, err := s.CreateQueueEntry(ctx, p2, "1v1", time.Now())
		if err != nil {
			t.Fatalf("entry 2: %v", err)
		}

		match := &Match{
			ID:        "match-" + p1,
			GameMode:  "1v1",
			Player1ID: p1,
			Player2ID: p2,
			Status:    MatchStatusInProgress,
			StartedAt: time.Now(),
		}
		if err := s.PairEntries(ctx, match, e1.ID, e2.ID); err != nil {
			t.Fatalf("pair entries: %v", err)
		}
		if match.GameNumber <= lastGameNumber {
			t.Errorf("game number %d not above previous %d", match.GameNumber, lastGameNumber)
		}
		lastGameNumber = match.GameNumber

		got, err := s.GetWaitingEntry(ctx, p1)
		if err != nil || got != nil {
			t.Errorf("entry still waiting after pairing: %+v err=%v", got, err)
		}
	}
}

func TestPairEntriesRejectsClaimedEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addPlayer(t, s, "p1", "Alice")
	addPlayer(t, s, "p2", "Bob")

	e1, _ := s.CreateQueueEntry(ctx, "p1", "1v1", time.Now())
	e2, _ := s.CreateQueueEntry(ctx, "p2", "1v1", time.Now())

	match := &Match{ID: "m1", GameMode: "1v1", Player1ID: "p1", Player2ID: "p2", Status: MatchStatusInProgress, StartedAt: time.Now()}
	if err := s.PairEntries(ctx, match, e1.ID, e2.ID); err != nil {
		t.Fatalf("pair entries: %v", err)
	}

	// Both entries are matched now; a second pairing must fail and leave
	// no second match behind.
	dup := &Match{ID: "m2", GameMode: "1v1", Player1ID: "p1", Player2ID: "p2", Status: MatchStatusInProgress, StartedAt: time.Now()}
	if err := s.PairEntries(ctx, dup, e1.ID, e2.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate pairing = %v, want ErrConflict", err)
	}
	if m, err := s.GetMatch(ctx, "m2"); err != nil || m != nil {
		t.Errorf("rolled-back match exists: %+v err=%v", m, err)
	}
}

func TestApplyMatchResultCompletesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addPlayer(t, s, "p1", "Alice")
	addPlayer(t, s, "p2", "Bob")

	e1, _ := s.CreateQueueEntry(ctx, "p1", "1v1", time.Now())
	e2, _ := s.CreateQueueEntry(ctx, "p2", "1v1", time.Now())
	match := &Match{ID: "m1", GameMode: "1v1", Player1ID: "p1", Player2ID: "p2", Status: MatchStatusInProgress, StartedAt: time.Now()}
	if err := s.PairEntries(ctx, match, e1.ID, e2.ID); err != nil {
		t.Fatalf("pair entries: %v", err)
	}

	winner := "p1"
	now := time.Now()
	r1 := &Rating{PlayerID: "p1", GameMode: "1v1", Rating: 1032, GamesPlayed: 1, Wins: 1, PeakRating: 1032, LastPlayed: now}
	r2 := &Rating{PlayerID: "p2", GameMode: "1v1", Rating: 968, GamesPlayed: 1, Losses: 1, PeakRating: 1000, LastPlayed: now}

	if err := s.ApplyMatchResult(ctx, "m1", &winner, now, r1, r2); err != nil {
		t.Fatalf("apply result: %v", err)
	}

	if err := s.ApplyMatchResult(ctx, "m1", &winner, now, r1, r2); !errors.Is(err, ErrConflict) {
		t.Errorf("second completion = %v, want ErrConflict", err)
	}

	got, err := s.GetRating(ctx, "p1", "1v1")
	if err != nil {
		t.Fatalf("get rating: %v", err)
	}
	if got == nil || got.Rating != 1032 || got.PeakRating != 1032 || got.Wins != 1 {
		t.Errorf("rating row = %+v", got)
	}

	m, err := s.GetMatch(ctx, "m1")
	if err != nil || m == nil {
		t.Fatalf("get match: %+v err=%v", m, err)
	}
	if m.Status != MatchStatusCompleted || m.WinnerID == nil || *m.WinnerID != "p1" || m.CompletedAt == nil {
		t.Errorf("completed match = %+v", m)
	}
}

func TestRatingUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addPlayer(t, s, "p1", "Alice")
	addPlayer(t, s, "p2", "Bob")

	if r, err := s.GetRating(ctx, "p1", "1v1"); err != nil || r != nil {
		t.Fatalf("missing rating = %+v err=%v, want nil nil", r, err)
	}

	// Two results through ApplyMatchResult accumulate in the same row.
	for i, winner := range []string{"p1", "p2"} {
		e1, _ := s.CreateQueueEntry(ctx, "p1", "1v1", time.Now())
		e2, _ := s.CreateQueueEntry(ctx, "p2", "1v1", time.Now())
		match := &Match{ID: "m" + string(rune('1'+i)), GameMode: "1v1", Player1ID: "p1", Player2ID: "p2", Status: MatchStatusInProgress, StartedAt: time.Now()}
		if err := s.PairEntries(ctx, match, e1.ID, e2.ID); err != nil {
			t.Fatalf("pair: %v", err)
		}

		now := time.Now()
		r1 := &Rating{PlayerID: "p1", GameMode: "1v1", Rating: 1000, GamesPlayed: i + 1, Wins: 1, Losses: i, PeakRating: 1032, LastPlayed: now}
		r2 := &Rating{PlayerID: "p2", GameMode: "1v1", Rating: 1000, GamesPlayed: i + 1, Wins: i, Losses: 1 - i, PeakRating: 1000, LastPlayed: now}
		w := winner
		if err := s.ApplyMatchResult(ctx, match.ID, &w, now, r1, r2); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	got, err := s.GetRating(ctx, "p1", "1v1")
	if err != nil || got == nil {
		t.Fatalf("get rating: %+v err=%v", got, err)
	}
	if got.GamesPlayed != 2 {
		t.Errorf("games played = %d, want 2", got.GamesPlayed)
	}
}

func TestSnapshotsAndBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if backup, err := s.GetLatestBackup(ctx, "1v1"); err != nil || backup != nil {
		t.Fatalf("missing backup = %+v err=%v, want nil nil", backup, err)
	}

	first := []LeaderboardEntry{{ID: "p1", Name: "Alice", Rating: 1032, Rank: 1}}
	second := []LeaderboardEntry{
		{ID: "p2", Name: "Bob", Rating: 1100, Rank: 1},
		{ID: "p1", Name: "Alice", Rating: 1032, Rank: 2},
	}

	if err := s.SaveSnapshot(ctx, "1v1", first); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if err := s.SaveLatestBackup(ctx, "1v1", first); err != nil {
		t.Fatalf("save backup: %v", err)
	}
	if err := s.SaveSnapshot(ctx, "1v1", second); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if err := s.SaveLatestBackup(ctx, "1v1", second); err != nil {
		t.Fatalf("save backup: %v", err)
	}

	backup, err := s.GetLatestBackup(ctx, "1v1")
	if err != nil {
		t.Fatalf("get backup: %v", err)
	}
	if len(backup) != 2 || backup[0].ID != "p2" {
		t.Errorf("backup = %+v, want latest write", backup)
	}

	snaps, err := s.ListSnapshots(ctx, "1v1", 10)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshot count = %d, want 2", len(snaps))
	}
	// Most recent first.
	if len(snaps[0].Entries) != 2 || len(snaps[1].Entries) != 1 {
		t.Errorf("snapshot order wrong: %+v", snaps)
	}

	window, err := s.GetSnapshotInWindow(ctx, "1v1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil || window == nil {
		t.Fatalf("snapshot in window: %+v err=%v", window, err)
	}
	if len(window.Entries) != 2 {
		t.Errorf("window snapshot entries = %d, want latest (2)", len(window.Entries))
	}

	past, err := s.GetSnapshotInWindow(ctx, "1v1", time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	if err != nil || past != nil {
		t.Errorf("empty window snapshot = %+v err=%v, want nil nil", past, err)
	}
}
