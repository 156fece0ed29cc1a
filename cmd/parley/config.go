package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parley/internal/config"
	"github.com/samcharles93/parley/internal/logger"
)

// loadSettings reads the config file, folds it into the flag variables and
// installs the configured logger in ctx.
func loadSettings(ctx context.Context, cmd *cli.Command) (context.Context, config.Config, error) {
	path := configFile
	explicit := cmd.IsSet("config")
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOptional(path, explicit)
	if err != nil {
		return ctx, cfg, cli.Exit(err.Error(), 1)
	}
	applyConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.ForFormat(logFormat, os.Stderr, logger.ParseLevel(level))
	if err != nil {
		return ctx, cfg, cli.Exit(err.Error(), 1)
	}
	return logger.WithContext(ctx, log), cfg, nil
}

// applyConfig applies config file values to flag variables the user did not
// set explicitly. PARLEY_ENGINE_URL sits between the flag and the file.
func applyConfig(c *cli.Command, cfg config.Config) {
	str := func(flag string, dst *string, v string) {
		if v != "" && !c.IsSet(flag) {
			*dst = v
		}
	}
	str("family", &family, cfg.Family)
	str("repo-id", &repoID, cfg.RepoID)
	str("system-prompt", &systemPrompt, cfg.SystemPrompt)
	str("tokenizer-json", &tokenizerJSON, cfg.TokenizerJSON)
	str("tokenizer-config", &tokenizerConfig, cfg.TokenizerConfig)
	str("hf-token", &hfToken, cfg.HFToken)
	str("cache-dir", &cacheDir, cfg.CacheDir)
	str("history-db", &historyDB, cfg.HistoryDB)
	str("log-level", &logLevel, cfg.LogLevel)
	str("log-format", &logFormat, cfg.LogFormat)

	if !c.IsSet("engine-url") {
		if env := config.EngineURLFromEnv(); env != "" {
			engineURL = env
		} else if cfg.EngineURL != "" {
			engineURL = cfg.EngineURL
		}
	}

	if cfg.MaxNewTokens != nil && !c.IsSet("max-new-tokens") {
		maxNewTokens = int64(*cfg.MaxNewTokens)
	}
	if cfg.Temperature != nil && !c.IsSet("temp") {
		temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		topK = int64(*cfg.TopK)
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		topP = *cfg.TopP
	}
	if cfg.MinP != nil && !c.IsSet("min-p") {
		minP = *cfg.MinP
	}
	if cfg.RepeatPenalty != nil && !c.IsSet("repeat-penalty") {
		repeatPenalty = *cfg.RepeatPenalty
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	// File stop sequences extend rather than replace the command line.
	stopSequences = append(stopSequences, cfg.StopSequences...)
}
