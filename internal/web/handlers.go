package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"laddermatch/internal/queue"
	"laddermatch/internal/store"
)

type joinRequest struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	GameMode string `json:"gameMode"`
}

func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" || req.GameMode == "" {
		s.writeError(w, http.StatusBadRequest, "playerId and gameMode required")
		return
	}
	if req.Name == "" {
		req.Name = req.PlayerID
	}

	entry, err := s.queue.JoinQueue(r.Context(), req.PlayerID, req.Name, req.GameMode)
	if err != nil {
		s.log.WithError(err).Error("join queue failed")
		s.writeError(w, http.StatusInternalServerError, "failed to join queue")
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

type leaveRequest struct {
	PlayerID string `json:"playerId"`
}

func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" {
		s.writeError(w, http.StatusBadRequest, "playerId required")
		return
	}

	left, err := s.queue.LeaveQueue(r.Context(), req.PlayerID)
	if err != nil {
		s.log.WithError(err).Error("leave queue failed")
		s.writeError(w, http.StatusInternalServerError, "failed to leave queue")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"left": left})
}

func (s *Server) handleQueueEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.queue.QueueEntries(r.Context())
	if err != nil {
		s.log.WithError(err).Error("queue listing failed")
		s.writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	if entries == nil {
		entries = []store.QueueEntryInfo{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleActiveMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.queue.ActiveMatches(r.Context())
	if err != nil {
		s.log.WithError(err).Error("active match listing failed")
		s.writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []store.Match{}
	}
	s.writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	detail, err := s.queue.Match(r.Context(), matchID)
	if err != nil {
		if errors.Is(err, queue.ErrMatchNotFound) {
			s.writeError(w, http.StatusNotFound, "match not found")
			return
		}
		s.log.WithError(err).Error("match lookup failed")
		s.writeError(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

type completeRequest struct {
	WinnerID *string `json:"winnerId"` // null means draw
}

func (s *Server) handleCompleteMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	match, err := s.queue.CompleteMatch(r.Context(), matchID, req.WinnerID)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrMatchNotFound):
			s.writeError(w, http.StatusNotFound, "match not found")
		case errors.Is(err, store.ErrConflict):
			s.writeError(w, http.StatusConflict, "match already completed")
		default:
			s.log.WithError(err).Error("complete match failed")
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, match)
}

func (s *Server) handlePlayerMatches(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	matches, err := s.queue.PlayerMatches(r.Context(), playerID)
	if err != nil {
		s.log.WithError(err).Error("player match listing failed")
		s.writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []store.Match{}
	}
	s.writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	s.writeJSON(w, http.StatusOK, s.queue.PlayerState(playerID))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")
	s.writeJSON(w, http.StatusOK, s.boards.GetLeaderboard(r.Context(), queueID))
}

func (s *Server) handleRefreshLeaderboard(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")
	s.writeJSON(w, http.StatusOK, s.boards.RefreshLeaderboard(r.Context(), queueID))
}

func (s *Server) handleUserRank(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")
	userID := chi.URLParam(r, "userID")

	entry, stale := s.boards.GetUserRank(r.Context(), queueID, userID)
	if entry == nil {
		s.writeError(w, http.StatusNotFound, "player not ranked")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry":   entry,
		"isStale": stale,
	})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	snapshots, err := s.boards.Snapshots(r.Context(), queueID, limit)
	if err != nil {
		s.log.WithError(err).Error("snapshot listing failed")
		s.writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snapshots == nil {
		snapshots = []store.LeaderboardSnapshot{}
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleSeason(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}

	snap, err := s.boards.SeasonLeaderboard(r.Context(), queueID, from, to)
	if err != nil {
		s.log.WithError(err).Error("season lookup failed")
		s.writeError(w, http.StatusInternalServerError, "failed to load season leaderboard")
		return
	}
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no snapshot in window")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}
