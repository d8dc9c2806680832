// Package config loads runtime configuration from environment variables.
//
// main loads a .env file (if present) with godotenv before calling Load, so
// local development can keep secrets out of the shell profile.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/planet-hub/internal/model"
)

// Config holds runtime configuration.
type Config struct {
	Port     int
	BaseURL  string // Public origin, used for magic links and OAuth callbacks
	LogLevel slog.Level

	DBDriver       string // "sqlite" or "pgx"
	DBDSN          string
	SeedCategories bool

	JWTSecret    string
	SessionTTL   time.Duration
	CookieSecure bool
	MagicLinkTTL time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration

	StaticDir        string
	StoragePath      string
	StoragePublicURL string

	ScoringURL       string
	ScoringTimeout   time.Duration
	UploadTimeout    time.Duration
	MaxDocumentBytes int64
	DraftTTL         time.Duration
	MaxDraftsPerUser int
	MaxRetainedBytes int64

	ImpactWeights model.ImpactWeights
	CorsOrigins   []string
}

// Load reads the environment. Malformed values are reported rather than
// silently replaced by defaults.
func Load() (Config, error) {
	var errs []string
	p := parser{errs: &errs}

	cfg := Config{
		Port:     p.int("PORT", 8080),
		BaseURL:  strings.TrimRight(envOr("BASE_URL", ""), "/"),
		LogLevel: p.level("LOG_LEVEL", slog.LevelInfo),

		DBDriver:       envOr("DB_DRIVER", "sqlite"),
		DBDSN:          envOr("DB_DSN", "data/planethub.db"),
		SeedCategories: p.bool("SEED_CATEGORIES", true),

		JWTSecret:    envOr("JWT_SECRET", ""),
		SessionTTL:   p.duration("SESSION_TTL", time.Hour),
		CookieSecure: p.bool("COOKIE_SECURE", false),
		MagicLinkTTL: p.duration("MAGIC_LINK_TTL", 15*time.Minute),

		GoogleClientID:     envOr("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: envOr("GOOGLE_CLIENT_SECRET", ""),
		GoogleCallbackURL:  envOr("GOOGLE_CALLBACK_URL", ""),

		SMTPHost:     envOr("SMTP_HOST", ""),
		SMTPPort:     p.int("SMTP_PORT", 587),
		SMTPUsername: envOr("SMTP_USERNAME", ""),
		SMTPPassword: envOr("SMTP_PASSWORD", ""),
		SMTPFrom:     envOr("SMTP_FROM", "no-reply@planethub.local"),
		SMTPTimeout:  p.duration("SMTP_TIMEOUT", 15*time.Second),

		StaticDir:        envOr("STATIC_DIR", "web/static"),
		StoragePath:      envOr("STORAGE_PATH", "data/storage"),
		StoragePublicURL: strings.TrimRight(envOr("STORAGE_PUBLIC_URL", ""), "/"),

		ScoringURL:       strings.TrimRight(envOr("SCORING_URL", "http://localhost:8000"), "/"),
		ScoringTimeout:   p.duration("SCORING_TIMEOUT", 30*time.Second),
		UploadTimeout:    p.duration("UPLOAD_TIMEOUT", 60*time.Second),
		MaxDocumentBytes: int64(p.int("MAX_DOCUMENT_BYTES", 20<<20)),
		DraftTTL:         p.duration("DRAFT_TTL", time.Hour),
		MaxDraftsPerUser: p.int("MAX_DRAFTS_PER_USER", 3),
		MaxRetainedBytes: int64(p.int("MAX_RETAINED_BYTES", 256<<20)),

		ImpactWeights: model.ImpactWeights{
			Submission: int64(p.int("IMPACT_WEIGHT_SUBMISSION", 500)),
			Rating:     int64(p.int("IMPACT_WEIGHT_RATING", 10)),
			Pledge:     int64(p.int("IMPACT_WEIGHT_PLEDGE", 100)),
		},
		CorsOrigins: parseCSV(envOr("CORS_ORIGINS", "")),
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = cfg.BaseURL + "/auth/google/callback"
	}
	if cfg.StoragePublicURL == "" {
		cfg.StoragePublicURL = cfg.BaseURL + "/media"
	}
	switch cfg.DBDriver {
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER: unsupported driver %q", cfg.DBDriver))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// GoogleEnabled reports whether Google sign-in has credentials.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

type parser struct {
	errs *[]string
}

func (p parser) fail(key, value string, err error) {
	*p.errs = append(*p.errs, fmt.Sprintf("%s: invalid value %q: %v", key, value, err))
}

func (p parser) int(key string, fallback int) int {
	value := envOr(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return parsed
}

func (p parser) bool(key string, fallback bool) bool {
	value := envOr(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return parsed
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	value := envOr(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return parsed
}

func (p parser) level(key string, fallback slog.Level) slog.Level {
	value := envOr(key, "")
	if value == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(value)); err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return lvl
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
