package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProjectID         string
	Port              string
	DiscordWebhookURL string
	OAuthClientID     string
	OAuthClientSecret string
	ProfileDBPath     string
	MediaRoot         string
	StoreWritesPerSec float64
	ShutdownTimeout   time.Duration
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required but not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	discordWebhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	if discordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, publish announcements will be skipped")
	}

	clientID := os.Getenv("GOOGLE_OAUTH_CLIENT_ID")
	if clientID == "" {
		slog.Warn("GOOGLE_OAUTH_CLIENT_ID not set, only a cached profile can sign in")
	}

	profileDBPath := os.Getenv("PROFILE_DB_PATH")
	if profileDBPath == "" {
		profileDBPath = "komsu.db"
	}

	mediaRoot := os.Getenv("MEDIA_ROOT")
	if mediaRoot == "" {
		mediaRoot = "."
	}

	writesPerSec := 10.0
	if v := os.Getenv("STORE_WRITES_PER_SECOND"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid STORE_WRITES_PER_SECOND %q: %w", v, err)
		}
		writesPerSec = parsed
	}

	shutdownTimeoutStr := os.Getenv("SHUTDOWN_TIMEOUT")
	if shutdownTimeoutStr == "" {
		shutdownTimeoutStr = "30s"
	}
	shutdownTimeout, err := time.ParseDuration(shutdownTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %q: %w", shutdownTimeoutStr, err)
	}

	return &Config{
		ProjectID:         projectID,
		Port:              port,
		DiscordWebhookURL: discordWebhookURL,
		OAuthClientID:     clientID,
		OAuthClientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
		ProfileDBPath:     profileDBPath,
		MediaRoot:         mediaRoot,
		StoreWritesPerSec: writesPerSec,
		ShutdownTimeout:   shutdownTimeout,
	}, nil
}
