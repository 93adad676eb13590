package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"laddermatch/internal/cache"
	"laddermatch/internal/config"
	"laddermatch/internal/leaderboard"
	"laddermatch/internal/notify"
	"laddermatch/internal/playerstate"
	"laddermatch/internal/queue"
	"laddermatch/internal/store"
	"laddermatch/internal/web"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load(log)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.WithError(err).Fatal("failed to create data directory")
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	// Redis backs the leaderboard cache and the state-change channel.
	// An unreachable Redis degrades to the durable backup path instead
	// of failing startup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, leaderboard reads will serve durable backups")
	}

	publisher := notify.NewRedisPublisher(rdb, log)
	states := playerstate.NewStore(publisher)

	boards := leaderboard.NewService(
		cache.NewRedisCache(rdb),
		leaderboard.NewStoreSource(db),
		db,
		log,
	)

	matchmaking := queue.NewService(db, states, boards, log)

	server := web.NewServer(matchmaking, boards, log)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("HTTP server shutdown error")
		}
	}()

	log.WithField("port", cfg.Port).Info("server running")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Fatal("HTTP server error")
	}

	log.Info("server stopped")
}
