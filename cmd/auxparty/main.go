// Package main provides the auxparty server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"auxparty/internal/auth"
	"auxparty/internal/core"
	"auxparty/internal/flood"
	httpserver "auxparty/internal/http"
	"auxparty/internal/match"
	"auxparty/internal/oracle"
	"auxparty/internal/playlist"
	"auxparty/internal/provider"
	"auxparty/internal/store"
)

const defaultServerHost = "0.0.0.0"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "auxparty",
	Short: "auxparty - collaborative AI-curated event playlists",
	Long: `auxparty hosts music events where guests join with their streaming account
(Spotify, Apple Music or YouTube Music) and an AI oracle curates a shared
playlist from everyone's listening history.`,
	RunE: runAuxparty,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")
	rootCmd.PersistentFlags().String("server-host", defaultServerHost, "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().String("store-path", "./auxparty.db", "SQLite database path")
	rootCmd.PersistentFlags().String("jwt-secret", "", "Secret for signing session tokens")
	rootCmd.PersistentFlags().Int("token-ttl-hours", 168, "Session token lifetime in hours")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "Spotify OAuth redirect URL")
	rootCmd.PersistentFlags().String("apple-client-id", "", "Apple Music client ID")
	rootCmd.PersistentFlags().String("apple-client-secret", "", "Apple Music client secret")
	rootCmd.PersistentFlags().String("youtube-client-id", "", "YouTube client ID")
	rootCmd.PersistentFlags().String("youtube-client-secret", "", "YouTube client secret")
	rootCmd.PersistentFlags().String("youtube-api-key", "", "YouTube Data API key")
	rootCmd.PersistentFlags().String("oracle-provider", "openai", "Oracle provider (openai, anthropic)")
	rootCmd.PersistentFlags().String("oracle-model", "", "Oracle model name")
	rootCmd.PersistentFlags().String("oracle-api-key", "", "Oracle API key")
	rootCmd.PersistentFlags().String("oracle-base-url", "", "Oracle API base URL override")
	rootCmd.PersistentFlags().String("frontend-url", "http://localhost:3000", "Frontend base URL for share links")
	rootCmd.PersistentFlags().Int("playlist-length", 10, "Number of tracks the oracle generates per playlist")
	rootCmd.PersistentFlags().Int("history-prompt-limit", 15, "Maximum recent tracks included in the oracle prompt")
	rootCmd.PersistentFlags().Bool("corrected-drop-count", false, "Drop exactly as many oracle entries as retained slots")
	rootCmd.PersistentFlags().Int("flood-limit-per-minute", 6, "Maximum rate-limited requests per user per minute")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	// Load .env file explicitly using gotenv
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// Don't exit if .env file doesn't exist, just warn
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("AUXPARTY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(&config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureServer(cfg)
	configureStore(cfg)
	configureAuth(cfg)
	configureProviders(cfg)
	configureOracle(cfg)
	configureApp(cfg)

	return cfg
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureStore(cfg *core.Config) {
	cfg.Store.Path = viper.GetString("store-path")
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./auxparty.db"
	}
}

func configureAuth(cfg *core.Config) {
	cfg.Auth.JWTSecret = viper.GetString("jwt-secret")
	if hours := viper.GetInt("token-ttl-hours"); hours > 0 {
		cfg.Auth.TokenTTL = time.Duration(hours) * time.Hour
	}
}

func configureProviders(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.Spotify.RedirectURL = viper.GetString("spotify-redirect-url")

	// Build default redirect URL based on server configuration if not explicitly set
	if cfg.Spotify.RedirectURL == "" {
		serverHost := cfg.Server.Host
		if serverHost == defaultServerHost {
			serverHost = "127.0.0.1" // Use localhost for OAuth callback
		}
		cfg.Spotify.RedirectURL = fmt.Sprintf("http://%s:%d/callback", serverHost, cfg.Server.Port)
	}

	cfg.Apple.ClientID = viper.GetString("apple-client-id")
	cfg.Apple.ClientSecret = viper.GetString("apple-client-secret")

	cfg.YouTube.ClientID = viper.GetString("youtube-client-id")
	cfg.YouTube.ClientSecret = viper.GetString("youtube-client-secret")
	cfg.YouTube.APIKey = viper.GetString("youtube-api-key")
}

func configureOracle(cfg *core.Config) {
	cfg.Oracle.Provider = viper.GetString("oracle-provider")
	cfg.Oracle.Model = viper.GetString("oracle-model")
	cfg.Oracle.APIKey = viper.GetString("oracle-api-key")
	cfg.Oracle.BaseURL = viper.GetString("oracle-base-url")
}

func configureApp(cfg *core.Config) {
	cfg.App.FrontendURL = viper.GetString("frontend-url")
	if cfg.App.FrontendURL == "" {
		cfg.App.FrontendURL = "http://localhost:3000"
	}

	cfg.App.PlaylistLength = viper.GetInt("playlist-length")
	if cfg.App.PlaylistLength <= 0 {
		cfg.App.PlaylistLength = 10
	}
	cfg.App.HistoryPromptLimit = viper.GetInt("history-prompt-limit")
	if cfg.App.HistoryPromptLimit <= 0 {
		cfg.App.HistoryPromptLimit = 15
	}
	cfg.App.CorrectedDropCount = viper.GetBool("corrected-drop-count")

	cfg.App.FloodLimitPerMinute = viper.GetInt("flood-limit-per-minute")
	if cfg.App.FloodLimitPerMinute <= 0 {
		cfg.App.FloodLimitPerMinute = 6
	}
}

func buildLogger(cfg *core.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if strings.ToLower(cfg.Format) == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runAuxparty(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting auxparty",
		zap.String("oracle_provider", config.Oracle.Provider),
		zap.String("store_path", config.Store.Path),
		zap.String("frontend_url", config.App.FrontendURL))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices()
	if err != nil {
		return err
	}

	return runServices(ctx, svcs)
}

type services struct {
	store      *store.Store
	gate       *flood.Floodgate
	httpServer *httpserver.Server
}

func initializeServices() (*services, error) {
	st, err := store.New(config.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	tokens := auth.NewTokens(config, st, logger)
	catalogs := provider.NewRegistry(config, tokens, logger)

	playlistOracle, err := oracle.New(config, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create oracle: %w", err)
	}

	matcher := match.NewMatcher(logger)
	engine := playlist.NewEngine(config, st, playlistOracle, matcher, catalogs, logger)

	issuer := auth.NewIssuer(config.Auth)
	gate := flood.New(config.App.FloodLimitPerMinute)

	srv := httpserver.NewServer(config, st, issuer, engine, catalogs, tokens, gate, logger)

	return &services{
		store:      st,
		gate:       gate,
		httpServer: srv,
	}, nil
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	logger.Info("auxparty started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	err := g.Wait()

	svcs.gate.Stop()
	if closeErr := svcs.store.Close(); closeErr != nil {
		logger.Debug("Failed to close store", zap.Error(closeErr))
	}

	if err != nil {
		logger.Error("auxparty stopped with error", zap.Error(err))
		return err
	}

	logger.Info("auxparty stopped gracefully")
	return nil
}

func validateConfig() error {
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	switch config.Oracle.Provider {
	case "openai", "anthropic":
		if config.Oracle.APIKey == "" {
			return fmt.Errorf("oracle API key is required for provider: %s", config.Oracle.Provider)
		}
	default:
		return fmt.Errorf("unsupported oracle provider: %s", config.Oracle.Provider)
	}

	if config.Spotify.ClientID == "" || config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client ID and secret are required")
	}

	return nil
}
