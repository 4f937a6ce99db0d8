package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the application
type Config struct {
	// File paths
	DBPath string

	// Server settings
	ServerHost string
	ServerPort int

	// Sync settings
	ItemSyncLimit    int
	CommentSyncLimit int

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		DBPath:           DefaultDBPath,
		ServerHost:       DefaultServerHost,
		ServerPort:       DefaultServerPort,
		ItemSyncLimit:    DefaultItemSyncLimit,
		CommentSyncLimit: DefaultCommentSyncLimit,
		LogLevel:         logLevel,
	}
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// Credentials holds the secrets needed to talk to the platforms and the
// local generation backend. Loaded from the environment (and an optional
// .env file) rather than flags so keys never show up in process listings.
type Credentials struct {
	RedditClientID     string `envconfig:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `envconfig:"REDDIT_CLIENT_SECRET"`
	RedditUsername     string `envconfig:"REDDIT_USERNAME"`
	RedditPassword     string `envconfig:"REDDIT_PASSWORD"`
	RedditUserAgent    string `envconfig:"REDDIT_USER_AGENT" default:"replydeck-manager/1.0"`

	YouTubeClientID     string `envconfig:"YOUTUBE_CLIENT_ID"`
	YouTubeClientSecret string `envconfig:"YOUTUBE_CLIENT_SECRET"`
	YouTubeRefreshToken string `envconfig:"YOUTUBE_REFRESH_TOKEN"`

	GenerationURL   string `envconfig:"GENERATION_URL" default:"http://localhost:11434"`
	GenerationModel string `envconfig:"GENERATION_MODEL" default:"llama3"`
}

// LoadCredentials reads credentials from an optional .env file and the
// process environment.
func LoadCredentials() (*Credentials, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Failed to load .env file")
		}
	}

	var creds Credentials
	if err := envconfig.Process("", &creds); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return &creds, nil
}
