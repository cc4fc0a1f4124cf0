package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	TaskFile      string
	DataDir       string
	StateDir      string
	HistoryDir    string
	MigrationsDir string
	CORSOrigin    string
	DatabaseURL   string
	// Redis - optional snapshot mirror for session state
	RedisURL    string
	SnapshotTTL time.Duration
	// Meilisearch - optional item search
	MeiliURL       string
	MeiliMasterKey string
	// S3-compatible storage for export artifacts - optional
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
}

func Load() Config {
	return Config{
		Addr:          getenv("API_ADDR", ":8686"),
		TaskFile:      getenv("POTATO_TASK_FILE", "./config/task.yaml"),
		DataDir:       getenv("POTATO_DATA_DIR", "./data/items"),
		StateDir:      getenv("POTATO_STATE_DIR", "./data/state"),
		HistoryDir:    getenv("POTATO_HISTORY_DIR", "./data/history"),
		MigrationsDir: getenv("POTATO_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:    getenv("POTATO_CORS_ORIGIN", "*"),
		// Postgres archive is optional; empty disables it
		DatabaseURL:    getenv("DATABASE_URL", ""),
		RedisURL:       getenv("REDIS_URL", ""),
		SnapshotTTL:    time.Duration(getenvInt("POTATO_SNAPSHOT_TTL_SECONDS", 2592000)) * time.Second,
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		S3Endpoint:     getenv("S3_ENDPOINT", ""),
		S3AccessKey:    getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getenv("S3_SECRET_KEY", ""),
		S3Bucket:       getenv("S3_BUCKET", "potato-exports"),
		S3UseSSL:       getenvBool("S3_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
