package core

import (
	"time"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Auth    AuthConfig
	Spotify SpotifyConfig
	Apple   AppleConfig
	YouTube YouTubeConfig
	Oracle  OracleConfig
	Log     LogConfig
	App     AppConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StoreConfig struct {
	Path string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type AppleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type YouTubeConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIKey       string
}

type OracleConfig struct {
	Provider    string // openai, anthropic
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	FrontendURL string
	// PlaylistLength is the number of tracks the oracle is asked for.
	PlaylistLength int
	// HistoryPromptLimit caps how many recent tracks go into the oracle prompt.
	HistoryPromptLimit int
	// CorrectedDropCount switches the reconciliation engine from the historical
	// fixed drop-of-2 to dropping exactly as many oracle entries as playlist
	// slots were retained. Off by default to preserve observed behavior.
	CorrectedDropCount  bool
	FloodLimitPerMinute int
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: "./auxparty.db",
		},
		Auth: AuthConfig{
			TokenTTL: 7 * 24 * time.Hour,
		},
		Oracle: OracleConfig{
			Provider:    "openai",
			Timeout:     20 * time.Second,
			MaxRetries:  1,
			Temperature: 0.6,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			FrontendURL:         "http://localhost:3000",
			PlaylistLength:      10,
			HistoryPromptLimit:  15,
			FloodLimitPerMinute: 6,
		},
	}
}
