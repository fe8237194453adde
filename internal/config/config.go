package config

import (
	"os"
	"time"
)

const (
	// Typing
	TypingIdleWindow = 2 * time.Second

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100

	// Live delivery
	SessionSendBuffer = 256

	// Ban
	DefaultBanDuration = 24 * time.Hour

	// Media uploads
	UploadRequestTimeout = 60 * time.Second
	CleanupTimeout       = 10 * time.Second
)

// getEnv returns the value of the environment variable or a default.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func ListenAddr() string {
	return getEnv("LISTEN_ADDR", ":8080")
}

func DatabaseDSN() string {
	return getEnv("DATABASE_DSN",
		"host=localhost user=user password=password dbname=meshlinedb port=5432 sslmode=disable")
}

func RedisAddr() string {
	return getEnv("REDIS_ADDR", "localhost:6379")
}

func RedisPassword() string {
	return os.Getenv("REDIS_PASSWORD")
}

func JWTSecret() []byte {
	return []byte(getEnv("JWT_SECRET", "dev-only-insecure-secret"))
}

// TelegramBotToken enables the offline notification bridge when set.
func TelegramBotToken() string {
	return os.Getenv("TELEGRAM_BOT_TOKEN")
}

func UploadEndpoint() string {
	return os.Getenv("UPLOAD_ENDPOINT")
}

func UploadAPIKey() string {
	return os.Getenv("UPLOAD_API_KEY")
}

func UploadAPISecret() string {
	return os.Getenv("UPLOAD_API_SECRET")
}
