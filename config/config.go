package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration, populated from environment
// variables (optionally loaded from a .env file).
type Config struct {
	// Addr is the web server listen address.
	Addr string
	// DBPath is the SQLite descriptor-cache path. Empty disables the
	// cache.
	DBPath string
	// RequestTimeout bounds a single model call.
	RequestTimeout time.Duration
	// SessionTTL is how long idle studio sessions are kept.
	SessionTTL time.Duration
	// AuditModel and ImageModel override the default Gemini models.
	AuditModel string
	ImageModel string
	// RequestsPerMinute caps outgoing model calls.
	RequestsPerMinute int
	// BotToken enables the Telegram gateway.
	BotToken string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; errors are ignored
// since the file may not exist.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:              getEnv("INKWASH_ADDR", ":8080"),
		DBPath:            getEnv("INKWASH_DB_PATH", "inkwash.db"),
		RequestTimeout:    time.Duration(getEnvInt("INKWASH_REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		SessionTTL:        time.Duration(getEnvInt("INKWASH_SESSION_TTL_MINUTES", 120)) * time.Minute,
		AuditModel:        getEnv("GEMINI_AUDIT_MODEL", ""),
		ImageModel:        getEnv("GEMINI_IMAGE_MODEL", ""),
		RequestsPerMinute: getEnvInt("GEMINI_REQUESTS_PER_MINUTE", 10),
		BotToken:          getEnv("BOT_TOKEN", ""),
	}
}

// EnvCredentialProvider resolves the Gemini API key from an environment
// variable on every call, so a rotated key takes effect without a
// restart.
type EnvCredentialProvider struct {
	// Var is the variable name. Empty means GEMINI_API_KEY.
	Var string
}

// ActiveKey implements studio.CredentialProvider.
func (p EnvCredentialProvider) ActiveKey() (string, error) {
	name := p.Var
	if name == "" {
		name = "GEMINI_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(name)), nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
