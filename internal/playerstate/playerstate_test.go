package playerstate

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []struct {
		PlayerID string
		State    State
	}
}

func (p *capturingPublisher) Publish(_ context.Context, playerID string, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, struct {
		PlayerID string
		State    State
	}{playerID, state})
}

func TestGetDefaultsToIdle(t *testing.T) {
	s := NewStore(nil)

	state := s.Get("unknown")
	if state.Status != StatusIdle {
		t.Errorf("default status = %q, want %q", state.Status, StatusIdle)
	}
	if state.QueueStartTime != nil || state.CurrentMatch != nil {
		t.Error("default state carries queue or match data")
	}
}

func TestSetOverwritesAndPublishes(t *testing.T) {
	pub := &capturingPublisher{}
	s := NewStore(pub)
	ctx := context.Background()

	now := time.Now()
	s.Set(ctx, "p1", State{Status: StatusQueuing, QueueStartTime: &now})
	s.Set(ctx, "p1", State{Status: StatusInGame, CurrentMatch: &MatchRef{OpponentID: "p2", StartTime: now}})

	got := s.Get("p1")
	if got.Status != StatusInGame {
		t.Errorf("status = %q, want %q", got.Status, StatusInGame)
	}
	if got.QueueStartTime != nil {
		t.Error("queue start time survived overwrite")
	}
	if got.CurrentMatch == nil || got.CurrentMatch.OpponentID != "p2" {
		t.Errorf("current match = %+v, want opponent p2", got.CurrentMatch)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	if pub.events[1].State.Status != StatusInGame {
		t.Errorf("last event status = %q, want %q", pub.events[1].State.Status, StatusInGame)
	}
}

func TestPerPlayerIsolation(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	now := time.Now()
	s.Set(ctx, "p1", State{Status: StatusQueuing, QueueStartTime: &now})

	if got := s.Get("p2"); got.Status != StatusIdle {
		t.Errorf("p2 status = %q, want idle", got.Status)
	}
}
