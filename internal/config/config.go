package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	CORSOrigin       string
	BaseURL          string
	AnonKey          string
	RuntimeConfigURL string
	ConfigFile       string
	RequestTimeout   time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	Lifecycle        string
	LogLevel         string
	// Session storage
	SessionBackend    string
	SessionFile       string
	SessionPassphrase string
	RedisURL          string
	DatabaseURL       string
	MigrationsDir     string
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// Evidence attachments (S3 compatible)
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	StorageRegion    string
	// Case archive
	ArchiveDir string
	// SMTP - empty host disables reviewer notices
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
}

// Load reads the environment, after merging a .env file from the working directory when present.
func Load() Config {
	_ = godotenv.Load()

	stateDir := defaultStateDir()
	return Config{
		Addr:             getenv("API_ADDR", ":8788"),
		CORSOrigin:       getenv("CORS_ORIGIN", "*"),
		BaseURL:          getenv("SUPABASE_URL", ""),
		AnonKey:          getenv("SUPABASE_ANON_KEY", ""),
		RuntimeConfigURL: getenv("OCM_RUNTIME_CONFIG_URL", ""),
		ConfigFile:       getenv("OCM_CONFIG_FILE", filepath.Join(stateDir, "config.json")),
		RequestTimeout:   getenvDuration("OCM_REQUEST_TIMEOUT", 10*time.Second),
		RateLimitRPS:     getenvFloat("OCM_RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getenvInt("OCM_RATE_LIMIT_BURST", 20),
		Lifecycle:        getenv("OCM_LIFECYCLE", "review"),
		LogLevel:         getenv("OCM_LOG_LEVEL", "info"),

		SessionBackend:    getenv("OCM_SESSION_BACKEND", "file"),
		SessionFile:       getenv("OCM_SESSION_FILE", filepath.Join(stateDir, "session.json")),
		SessionPassphrase: getenv("OCM_SESSION_PASSPHRASE", ""),
		RedisURL:          getenv("REDIS_URL", ""),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		MigrationsDir:     getenv("OCM_MIGRATIONS_DIR", "./db/migrations"),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		StorageEndpoint:  getenv("OCM_STORAGE_ENDPOINT", ""),
		StorageAccessKey: getenv("OCM_STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: getenv("OCM_STORAGE_SECRET_KEY", ""),
		StorageBucket:    getenv("OCM_STORAGE_BUCKET", "evidence"),
		StorageUseSSL:    getenvBool("OCM_STORAGE_USE_SSL", true),
		StorageRegion:    getenv("OCM_STORAGE_REGION", "us-east-1"),

		ArchiveDir: getenv("OCM_ARCHIVE_DIR", filepath.Join(stateDir, "archive")),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Offboarding Case Manager"),
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "ocm")
	}
	return ".ocm"
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
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

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
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

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
