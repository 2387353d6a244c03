package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Limit is one rate limit rule: Max requests per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port          string
	StorageDriver string
	DatabaseURL   string
	JWTSecret     string
	JWTIssuer     string
	JWTTTL        time.Duration
	CORSOrigins   []string
	EncryptionKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeneralLimit Limit
	AuthLimit    Limit
	UploadLimit  Limit
	MessageLimit Limit

	FriendCodeTTL time.Duration
	SchoolCodeTTL time.Duration

	SweepInterval          time.Duration
	SweepLockTTL           time.Duration
	PostArchiveAfter       time.Duration
	ProfileChangeRetention time.Duration

	BlockedTerms   []string
	UploadDir      string
	MaxUploadBytes int64
}

const day = 24 * time.Hour

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Port:          fallback(os.Getenv("PORT"), "8080"),
		StorageDriver: strings.ToLower(fallback(os.Getenv("STORAGE_DRIVER"), DriverPostgres)),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:     fallback(os.Getenv("JWT_ISSUER"), "nova-backend"),
		CORSOrigins:   parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		EncryptionKey: strings.TrimSpace(os.Getenv("ENCRYPTION_KEY")),

		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0),

		JWTTTL: durationEnv("JWT_TTL", 60*time.Minute),

		GeneralLimit: limitEnv("RATE_LIMIT_GENERAL", 100, 15*time.Minute),
		AuthLimit:    limitEnv("RATE_LIMIT_AUTH", 5, 15*time.Minute),
		UploadLimit:  limitEnv("RATE_LIMIT_UPLOAD", 10, time.Hour),
		MessageLimit: limitEnv("RATE_LIMIT_MESSAGE", 50, 15*time.Minute),

		FriendCodeTTL: durationEnv("FRIEND_CODE_TTL", 365*day),
		SchoolCodeTTL: durationEnv("SCHOOL_CODE_TTL", 30*day),

		SweepInterval:          durationEnv("SWEEP_INTERVAL", time.Hour),
		SweepLockTTL:           durationEnv("SWEEP_LOCK_TTL", 10*time.Minute),
		PostArchiveAfter:       durationEnv("POST_ARCHIVE_AFTER", 365*day),
		ProfileChangeRetention: durationEnv("PROFILE_CHANGE_RETENTION", 30*day),

		BlockedTerms:   parseList(os.Getenv("BLOCKED_TERMS")),
		UploadDir:      fallback(os.Getenv("UPLOAD_DIR"), "uploads"),
		MaxUploadBytes: int64(intEnv("MAX_UPLOAD_BYTES", 5<<20)),
	}

	// JWT_TTL_MINUTES takes precedence over JWT_TTL.
	if minutes, err := strconv.Atoi(strings.TrimSpace(os.Getenv("JWT_TTL_MINUTES"))); err == nil && minutes > 0 {
		cfg.JWTTTL = time.Duration(minutes) * time.Minute
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", DriverPostgres, DriverMemory)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.EncryptionKey) < 32 {
		return errors.New("ENCRYPTION_KEY is required and must be at least 32 characters")
	}
	return nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	out := parseList(input)
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func parseList(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intEnv(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && v >= 0 {
		return v
	}
	return def
}

// durationEnv reads KEY as a Go duration string, then KEY_SECONDS as an
// integer, then falls back to def.
func durationEnv(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil && d > 0 {
		return d
	}
	if s, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key + "_SECONDS"))); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	return def
}

func limitEnv(prefix string, max int, window time.Duration) Limit {
	l := Limit{Max: intEnv(prefix+"_MAX", max), Window: durationEnv(prefix+"_WINDOW", window)}
	if l.Max == 0 {
		l.Max = max
	}
	return l
}
