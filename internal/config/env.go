package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DatabaseURL  string
	JWTSecret    string
	CookieSecure bool
	StaticDir    string

	BackendURL     string
	BackendTimeout time.Duration

	IdentityMode   string
	FirebaseAPIKey string

	// DevProviderSignIn enables unverified provider sign-in in local mode.
	DevProviderSignIn bool

	ImageHostURL string
	ImageHostKey string

	RedisURL      string
	RedisPassword string
	RedisDB       int

	SessionTTL    time.Duration
	CountdownTick time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		CookieSecure:   getEnv("COOKIE_SECURE", "") == "1",
		StaticDir:      getEnv("STATIC_DIR", "./static"),
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:5000"),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 0),
		IdentityMode:   getEnv("IDENTITY_MODE", "local"),
		FirebaseAPIKey: getEnv("FIREBASE_API_KEY", ""),
		ImageHostURL:   getEnv("IMAGE_HOST_URL", "https://api.imgbb.com/1/upload"),
		ImageHostKey:   getEnv("IMAGE_HOST_KEY", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		CountdownTick:  getEnvDuration("COUNTDOWN_TICK", time.Second),
	}

	cfg.DevProviderSignIn = getEnv("DEV_PROVIDER_SIGNIN", "") == "1"

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	switch cfg.IdentityMode {
	case "local":
	case "firebase":
		if cfg.FirebaseAPIKey == "" {
			return cfg, errors.New("FIREBASE_API_KEY is required when IDENTITY_MODE=firebase")
		}
	default:
		return cfg, errors.New("IDENTITY_MODE must be local or firebase")
	}
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = time.Second
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
