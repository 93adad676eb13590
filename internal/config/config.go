package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port      string
	DBPath    string
	RedisAddr string
	LogLevel  string
}

// Load reads configuration from .env and the environment.
func Load(log *logrus.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DBPath:    getEnv("DATABASE_PATH", "./data/laddermatch.db"),
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	log.WithFields(logrus.Fields{
		"port":       cfg.Port,
		"db_path":    cfg.DBPath,
		"redis_addr": cfg.RedisAddr,
		"log_level":  cfg.LogLevel,
	}).Info("configuration loaded")

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
