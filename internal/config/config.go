// Package config loads server settings from the environment, reading a
// local .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	IdentityFirebase = "firebase"
	IdentityLocal    = "local"

	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

type Firebase struct {
	ProjectID       string
	ClientEmail     string
	PrivateKey      string
	CredentialsFile string
}

// HasServiceAccount reports whether discrete service-account credentials
// were supplied through the environment.
func (f Firebase) HasServiceAccount() bool {
	return f.ClientEmail != "" && f.PrivateKey != ""
}

type Config struct {
	Addr               string
	Env                string
	Firebase           Firebase
	IdentityProvider   string
	LocalAuthSecret    string
	StoreBackend       string
	TenantRoot         string
	CollectionPrefix   string
	SessionCookieName  string
	SessionTTL         time.Duration
	SecureCookies      bool
	OriginCheck        bool
	CORSAllowedOrigins []string
	APIMaxBodyBytes    int64
	ImportMaxFileBytes int64
	ImportMaxRows      int
	ReadHeaderTimeout  time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RateLimitMaxIPs    int
}

func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func Load() (Config, error) {
	_ = godotenv.Load()

	projectID := getEnv("FIREBASE_PROJECT_ID", os.Getenv("FIREBASE_ADMIN_PROJECT_ID"))
	cfg := Config{
		Addr: getEnv("API_ADDR", ":8080"),
		Env:  getEnv("APP_ENV", "dev"),
		Firebase: Firebase{
			ProjectID:   projectID,
			ClientEmail: os.Getenv("FIREBASE_ADMIN_CLIENT_EMAIL"),
			// Keys pasted into a single-line env var carry literal \n.
			PrivateKey:      strings.ReplaceAll(os.Getenv("FIREBASE_ADMIN_PRIVATE_KEY"), `\n`, "\n"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		IdentityProvider:  strings.ToLower(getEnv("IDENTITY_PROVIDER", IdentityFirebase)),
		LocalAuthSecret:   os.Getenv("LOCAL_AUTH_SECRET"),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", StoreFirestore)),
		TenantRoot:        getEnv("TENANT_ROOT_COLLECTION", "companies"),
		CollectionPrefix:  os.Getenv("COLLECTION_PREFIX"),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "token"),
		SessionTTL:        time.Duration(getEnvInt("SESSION_TTL_HOURS", 1)) * time.Hour,
		SecureCookies:     getEnvBool("COOKIE_SECURE", false),
		OriginCheck:       getEnvBool("ORIGIN_CHECK", true),
		CORSAllowedOrigins: getEnvCSV("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		}),
		APIMaxBodyBytes:    int64(getEnvInt("API_MAX_BODY_MB", 1)) * 1024 * 1024,
		ImportMaxFileBytes: int64(getEnvInt("IMPORT_MAX_FILE_MB", 10)) * 1024 * 1024,
		ImportMaxRows:      getEnvInt("IMPORT_MAX_ROWS", 20000),
		ReadHeaderTimeout:  time.Duration(getEnvInt("API_READ_HEADER_TIMEOUT_SEC", 5)) * time.Second,
		ReadTimeout:        time.Duration(getEnvInt("API_READ_TIMEOUT_SEC", 30)) * time.Second,
		WriteTimeout:       time.Duration(getEnvInt("API_WRITE_TIMEOUT_SEC", 60)) * time.Second,
		IdleTimeout:        time.Duration(getEnvInt("API_IDLE_TIMEOUT_SEC", 60)) * time.Second,
		RateLimitMaxIPs:    getEnvInt("RATE_LIMIT_MAX_IPS", 10000),
	}

	if cfg.IsProduction() {
		cfg.SecureCookies = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.IdentityProvider {
	case IdentityFirebase:
	case IdentityLocal:
		if c.IsProduction() {
			errs = append(errs, fmt.Errorf("IDENTITY_PROVIDER=local is not allowed when APP_ENV=%s", c.Env))
		}
		if len(c.LocalAuthSecret) < 32 {
			errs = append(errs, fmt.Errorf("LOCAL_AUTH_SECRET must be at least 32 bytes"))
		}
	default:
		errs = append(errs, fmt.Errorf("IDENTITY_PROVIDER must be %q or %q, got %q", IdentityFirebase, IdentityLocal, c.IdentityProvider))
	}

	switch c.StoreBackend {
	case StoreFirestore:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore store"))
		}
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, fmt.Errorf("STORE_BACKEND=memory is not allowed when APP_ENV=%s", c.Env))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreFirestore, StoreMemory, c.StoreBackend))
	}

	if c.IdentityProvider == IdentityFirebase && c.Firebase.ProjectID == "" {
		errs = append(errs, fmt.Errorf("FIREBASE_PROJECT_ID is required for the firebase identity provider"))
	}
	if c.TenantRoot == "" || strings.Contains(c.TenantRoot, "/") {
		errs = append(errs, fmt.Errorf("TENANT_ROOT_COLLECTION must be a single collection name"))
	}
	if c.ImportMaxRows <= 0 {
		errs = append(errs, fmt.Errorf("IMPORT_MAX_ROWS must be positive"))
	}
	return errors.Join(errs...)
}

// NeedsFirebase reports whether the server must initialise a Firebase app.
func (c Config) NeedsFirebase() bool {
	return c.IdentityProvider == IdentityFirebase || c.StoreBackend == StoreFirestore
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvCSV(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
