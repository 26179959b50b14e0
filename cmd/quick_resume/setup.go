package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/quick-resume/internal/auth"
	"github.com/jonathan/quick-resume/internal/config"
	"github.com/jonathan/quick-resume/internal/db"
	"github.com/jonathan/quick-resume/internal/generation"
	"github.com/jonathan/quick-resume/internal/llm"
	"github.com/jonathan/quick-resume/internal/observability"
	"github.com/jonathan/quick-resume/internal/prompts"
)

// Flag values shared by the commands that register them.
var (
	flagOutputDir   string
	flagTemplate    string
	flagStrategy    string
	flagServiceURL  string
	flagAPIKey      string
	flagModel       string
	flagDatabaseURL string
	flagUseBrowser  bool
	flagOpen        bool
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", "", "Directory holding exported documents")
	cmd.Flags().StringVar(&flagDatabaseURL, "db-url", "", "PostgreSQL connection URL for request history (optional, defaults to DATABASE_URL env var)")
}

func addGenerationFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagTemplate, "template", "t", "", "Path to DOCX template (default: built-in template)")
	cmd.Flags().StringVar(&flagStrategy, "strategy", "", "Generation strategy: local or remote")
	cmd.Flags().StringVar(&flagServiceURL, "service-url", "", "Base URL of the generation service (remote strategy)")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Gemini model override")
}

// loadConfig resolves the effective configuration for cmd: config file first,
// then explicitly set flags, then defaults, then environment credentials.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.OutputDir = flagOutputDir
	}
	if flags.Changed("template") {
		cfg.Template = flagTemplate
	}
	if flags.Changed("strategy") {
		cfg.Strategy = flagStrategy
	}
	if flags.Changed("service-url") {
		cfg.ServiceURL = flagServiceURL
	}
	if flags.Changed("api-key") {
		cfg.APIKey = flagAPIKey
	}
	if flags.Changed("model") {
		cfg.Model = flagModel
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if flags.Changed("use-browser") {
		cfg.UseBrowser = flagUseBrowser
	}
	if flags.Changed("open") {
		cfg.OpenAfterExport = flagOpen
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}

	merged := cfg.MergeWithDefaults(config.Defaults())
	merged.ApplyEnv()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)
	return logger
}

// buildStrategy creates the configured generation strategy. The returned
// close function releases the LLM client of a local strategy.
func buildStrategy(ctx context.Context, cfg *config.Config) (generation.Strategy, func() error, error) {
	noop := func() error { return nil }

	if cfg.Strategy == config.StrategyRemote {
		var tokens generation.TokenSource
		if cfg.ServiceToken != "" {
			tokenService, err := newTokenService(cfg)
			if err != nil {
				return nil, nil, err
			}
			tokens = tokenService
		}
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		return generation.NewRemoteStrategy(cfg.ServiceURL, timeout, tokens), noop, nil
	}

	if cfg.APIKey == "" {
		return nil, nil, fmt.Errorf("%s environment variable or --api-key flag is required", config.EnvAPIKey)
	}

	set, err := prompts.Generation()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load generation prompts: %w", err)
	}
	if cfg.Instructions != "" {
		override, err := prompts.LoadSet(cfg.Instructions)
		if err != nil {
			return nil, nil, err
		}
		set = set.Merge(override)
	}

	llmConfig := llm.DefaultConfig()
	if cfg.Model != "" {
		llmConfig = llmConfig.WithModel(llm.TierStandard, cfg.Model)
	}
	client, err := llm.NewClient(ctx, llmConfig, cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return generation.NewLocalStrategy(client, set, cfg.MaxSkillGroups), client.Close, nil
}

func newTokenService(cfg *config.Config) (*auth.TokenService, error) {
	serviceAuth, err := config.NewServiceAuth(cfg.ServiceToken)
	if err != nil {
		return nil, err
	}
	return auth.NewTokenService(serviceAuth), nil
}

// openHistory connects to the history database when one is configured.
// A nil DB means history is disabled.
func openHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("history database: %w", err)
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}
	logger.Debug("request history enabled")
	return database, nil
}
