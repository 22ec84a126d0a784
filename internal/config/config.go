package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Reported-set backends
const (
	ReportedSetMemory   = "memory"
	ReportedSetDatabase = "database"
	ReportedSetRedis    = "redis"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Environment
	Env string // "development", "production", etc.

	// Server
	ServerAddr string
	BaseURL    string
	SiteTitle  string

	// TLS
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	// Storage
	StorageDriver      string // postgres or sqlite
	DatabaseURL        string
	SQLitePath         string
	RedisURL           string
	ReportedSetBackend string // memory, database or redis

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	AdminEmails      []string

	// Session
	SessionSecret string // Used for encrypting cookies (min 32 chars)

	// CORS
	CORSOrigins string // Comma-separated allowed origins

	// Rate limit on analysis endpoints, requests per minute per client
	RateLimit int

	// Signals
	VirusTotalAPIKey string
	VirusTotalURL    string
	ClassifierURL    string
	LLMURL           string
	LLMAPIKey        string
	LLMScoreScale    string // unit or percent
	RDAPURL          string
	DNSServer        string
	SignalTimeout    time.Duration

	// Threat feed
	FeedURL          string
	FeedFormat       string
	FeedSyncInterval time.Duration
	FeedCacheDir     string

	// Monitors
	MonitorDefaultInterval time.Duration
	MonitorMinInterval     time.Duration
	ReportTimeout          time.Duration

	// Email
	SMTPEnabled     bool
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	SMTPFromName    string
	SMTPTLS         string // none, tls or starttls
	ReportRecipient string // default CERT mailbox

	// Screenshots
	ScreenshotEnabled bool
	ChromePath        string

	// Vision analyzer over page screenshots; needs screenshots enabled
	VisionURL        string
	VisionAPIKey     string
	VisionScoreScale string // unit or percent
	VisionTimeout    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Env:         getEnv("ENV", "development"),
		ServerAddr:  getEnv("SERVER_ADDR", ":3000"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:3000"),
		SiteTitle:   getEnv("SITE_TITLE", "CatchPhish"),
		TLSEnabled:  getEnvBool("TLS_ENABLED", false),
		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		StorageDriver:      getEnv("STORAGE_DRIVER", StoragePostgres),
		DatabaseURL:        getEnv("DATABASE_URL", "postgres://localhost:5432/catchphish?sslmode=disable"),
		SQLitePath:         getEnv("SQLITE_PATH", "catchphish.db"),
		RedisURL:           getEnv("REDIS_URL", ""),
		ReportedSetBackend: getEnv("REPORTED_SET_BACKEND", ReportedSetMemory),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("OIDC_REDIRECT_URL", "http://localhost:3000/auth/callback"),
		AdminEmails:      splitList(getEnv("ADMIN_EMAILS", "")),
		SessionSecret:    getEnv("SESSION_SECRET", "change-me-in-production-min-32-chars"),
		CORSOrigins:      getEnv("CORS_ORIGINS", ""),
		RateLimit:        getEnvInt("RATE_LIMIT", 30),

		VirusTotalAPIKey: getEnv("VIRUSTOTAL_API_KEY", ""),
		VirusTotalURL:    getEnv("VIRUSTOTAL_URL", "https://www.virustotal.com/api/v3"),
		ClassifierURL:    getEnv("CLASSIFIER_URL", ""),
		LLMURL:           getEnv("LLM_URL", ""),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMScoreScale:    getEnv("LLM_SCORE_SCALE", "percent"),
		RDAPURL:          getEnv("RDAP_URL", "https://rdap.org"),
		DNSServer:        getEnv("DNS_SERVER", "8.8.8.8:53"),
		SignalTimeout:    getEnvDuration("SIGNAL_TIMEOUT", 10*time.Second),

		FeedURL:          getEnv("FEED_URL", "https://openphish.com/feed.txt"),
		FeedFormat:       getEnv("FEED_FORMAT", "url-list"),
		FeedSyncInterval: getEnvDuration("FEED_SYNC_INTERVAL", 15*time.Minute),
		FeedCacheDir:     getEnv("FEED_CACHE_DIR", ""),

		MonitorDefaultInterval: getEnvDuration("MONITOR_DEFAULT_INTERVAL", 5*time.Minute),
		MonitorMinInterval:     getEnvDuration("MONITOR_MIN_INTERVAL", 30*time.Second),
		ReportTimeout:          getEnvDuration("REPORT_TIMEOUT", 2*time.Minute),

		SMTPEnabled:     getEnvBool("SMTP_ENABLED", false),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:        getEnv("SMTP_FROM", ""),
		SMTPFromName:    getEnv("SMTP_FROM_NAME", "CatchPhish"),
		SMTPTLS:         getEnv("SMTP_TLS", "starttls"),
		ReportRecipient: getEnv("REPORT_RECIPIENT", ""),

		ScreenshotEnabled: getEnvBool("SCREENSHOT_ENABLED", false),
		ChromePath:        getEnv("CHROME_PATH", ""),

		VisionURL:        getEnv("VISION_URL", ""),
		VisionAPIKey:     getEnv("VISION_API_KEY", ""),
		VisionScoreScale: getEnv("VISION_SCORE_SCALE", "unit"),
		VisionTimeout:    getEnvDuration("VISION_TIMEOUT", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// Validate reports configuration that cannot work at all.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StoragePostgres, StorageSQLite:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q must be postgres or sqlite", c.StorageDriver))
	}
	switch c.ReportedSetBackend {
	case ReportedSetMemory, ReportedSetDatabase:
	case ReportedSetRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REPORTED_SET_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("REPORTED_SET_BACKEND %q must be memory, database or redis", c.ReportedSetBackend))
	}
	if c.SignalTimeout <= 0 {
		errs = append(errs, errors.New("SIGNAL_TIMEOUT must be positive"))
	}
	if c.MonitorMinInterval <= 0 || c.MonitorDefaultInterval < c.MonitorMinInterval {
		errs = append(errs, errors.New("MONITOR_DEFAULT_INTERVAL must be at least MONITOR_MIN_INTERVAL"))
	}
	if c.TLSEnabled && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_ENABLED requires TLS_CERT_FILE and TLS_KEY_FILE"))
	}
	return errors.Join(errs...)
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// IsOIDCEnabled returns true if an identity provider is configured.
func (c *Config) IsOIDCEnabled() bool {
	return c.OIDCIssuer != "" && c.OIDCClientID != ""
}

// IsEmailEnabled returns true if SMTP delivery is fully configured.
func (c *Config) IsEmailEnabled() bool {
	return c.SMTPEnabled && c.SMTPHost != "" && c.SMTPFrom != ""
}

// IsAdmin returns true if email belongs to a configured administrator.
func (c *Config) IsAdmin(email string) bool {
	email = strings.ToLower(email)
	for _, a := range c.AdminEmails {
		if a == email {
			return true
		}
	}
	return false
}
