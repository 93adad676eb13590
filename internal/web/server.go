package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"laddermatch/internal/leaderboard"
	"laddermatch/internal/queue"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	router *chi.Mux
	queue  *queue.Service
	boards *leaderboard.Service
	log    *logrus.Logger
}

// NewServer creates the HTTP surface over the matchmaking core.
func NewServer(q *queue.Service, boards *leaderboard.Service, log *logrus.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		queue:  q,
		boards: boards,
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/queue/join", s.handleJoinQueue)
		r.Post("/queue/leave", s.handleLeaveQueue)
		r.Get("/queue", s.handleQueueEntries)

		r.Get("/matches/active", s.handleActiveMatches)
		r.Get("/matches/{matchID}", s.handleGetMatch)
		r.Post("/matches/{matchID}/complete", s.handleCompleteMatch)

		r.Get("/players/{playerID}/matches", s.handlePlayerMatches)
		r.Get("/players/{playerID}/state", s.handlePlayerState)

		r.Route("/leaderboard/{queueID}", func(r chi.Router) {
			r.Get("/", s.handleLeaderboard)
			r.Post("/refresh", s.handleRefreshLeaderboard)
			r.Get("/rank/{userID}", s.handleUserRank)
			r.Get("/snapshots", s.handleSnapshots)
			r.Get("/season", s.handleSeason)
		})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
