package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment at startup.
type Config struct {
	Port      string
	DBDriver  string
	DBDSN     string
	JWTSecret string
	TokenTTL  time.Duration

	YouTubeAPIKey       string
	SpotifyClientID     string
	SpotifyClientSecret string

	MinioEndpoint string
	MinioAccess   string
	MinioSecret   string
	MinioBucket   string
	MinioSSL      bool

	// Requests per minute per IP for the provider-quota endpoints.
	FetchRateLimit   int
	InsightRateLimit int
}

func loadConfig() Config {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	return Config{
		Port:      getEnv("PORT", "8080"),
		DBDriver:  getEnv("DB_DRIVER", "sqlite"),
		DBDSN:     getEnv("DB_DSN", "/data/rechartable.db"),
		JWTSecret: getEnv("JWT_SECRET", "supersecretkey"),
		TokenTTL:  getDurationEnv("TOKEN_TTL", 7*24*time.Hour),

		YouTubeAPIKey:       os.Getenv("YOUTUBE_API_KEY"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),

		MinioEndpoint: os.Getenv("MINIO_ENDPOINT"),
		MinioAccess:   getEnv("MINIO_ACCESS_KEY", "rechartable"),
		MinioSecret:   getEnv("MINIO_SECRET_KEY", "changeme123"),
		MinioBucket:   getEnv("MINIO_BUCKET", "snapshots"),
		MinioSSL:      getEnv("MINIO_USE_SSL", "false") == "true",

		FetchRateLimit:   getIntEnv("FETCH_RATE_LIMIT", 10),
		InsightRateLimit: getIntEnv("INSIGHT_RATE_LIMIT", 5),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			log.Printf("invalid %s %q, using %d", key, v, fallback)
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
