package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	ServerPort  string

	// IdP. The service consumes tokens the IdP already validated; BaseURL is
	// only used to refresh permission snapshots.
	IdPBaseURL  string
	IdPTimeout  time.Duration
	SessionTTL  time.Duration
	CacheTTL    time.Duration
	SweepSpec   string // cron spec for the expired-session sweep
	RemindSpec  string // cron spec for the reminder tick
	RemindAhead time.Duration

	// Export pipeline.
	RequestHorizonDays int
	ExcelTempOnly      bool
	ExcelLocalDir      string
	ExportMaxAttempts  int
	ExportRetryBase    time.Duration

	// Filer.
	SMBSecretKey   [32]byte
	SMBDialTimeout time.Duration
	SMBOpTimeout   time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine; env vars or defaults cover everything.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "postgresql://postgres@localhost:5432/otportal"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		IdPBaseURL:         getEnv("IDP_BASE_URL", "http://localhost:9000"),
		IdPTimeout:         10 * time.Second,
		SessionTTL:         24 * time.Hour,
		CacheTTL:           getDuration("SESSION_CACHE_TTL", 15*time.Minute),
		SweepSpec:          getEnv("SESSION_SWEEP_SPEC", "*/10 * * * *"),
		RemindSpec:         getEnv("REMINDER_TICK_SPEC", "0 8 * * *"),
		RemindAhead:        24 * time.Hour,
		RequestHorizonDays: getInt("REQUEST_HORIZON_DAYS", 7),
		ExcelTempOnly:      os.Getenv("EXCEL_TEMP_ONLY") != "",
		ExcelLocalDir:      getEnv("EXCEL_LOCAL_DIR", "data/excel"),
		ExportMaxAttempts:  3,
		ExportRetryBase:    60 * time.Second,
		SMBDialTimeout:     30 * time.Second,
		SMBOpTimeout:       60 * time.Second,
	}

	keyHex := os.Getenv("SMB_SECRET_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("SMB_SECRET_KEY is required (64 hex chars)")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("SMB_SECRET_KEY must be 32 bytes hex-encoded")
	}
	copy(cfg.SMBSecretKey[:], key)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
