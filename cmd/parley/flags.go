package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parley/internal/config"
)

var (
	configFile string

	engineURL    string
	family       string
	repoID       string
	systemPrompt string

	tokenizerJSON   string
	tokenizerConfig string
	engineTokenizer bool
	hfToken         string
	cacheDir        string

	maxNewTokens  int64
	temperature   float64
	topK          int64
	topP          float64
	minP          float64
	repeatPenalty float64
	repeatLastN   int64
	seed          int64
	stopSequences []string

	historyDB string

	logLevel  string
	logFormat string
	debug     bool
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file (.yaml, .yml or .toml)",
			Destination: &configFile,
		},
	}
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "engine-url",
			Aliases:     []string{"engine"},
			Usage:       "base URL of the llama.cpp server (env PARLEY_ENGINE_URL)",
			Value:       config.DefaultEngineURL,
			Destination: &engineURL,
		},
		&cli.StringFlag{
			Name:        "family",
			Aliases:     []string{"f"},
			Usage:       "prompt family (llama2, llama3, chatml); inferred from --repo-id when empty",
			Destination: &family,
		},
		&cli.StringFlag{
			Name:        "repo-id",
			Aliases:     []string{"repo"},
			Usage:       "hub model repo id, used for family and tokenizer inference",
			Value:       config.DefaultRepoID,
			Destination: &repoID,
		},
		&cli.StringFlag{
			Name:        "system-prompt",
			Aliases:     []string{"system", "sys"},
			Usage:       "system prompt for new sessions",
			Value:       config.DefaultSystemPrompt,
			Destination: &systemPrompt,
		},
	}
}

func tokenizerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tokenizer-json",
			Usage:       "use a local tokenizer.json instead of downloading one",
			Destination: &tokenizerJSON,
		},
		&cli.StringFlag{
			Name:        "tokenizer-config",
			Usage:       "local tokenizer_config.json to pair with --tokenizer-json",
			Destination: &tokenizerConfig,
		},
		&cli.BoolFlag{
			Name:        "engine-tokenizer",
			Usage:       "tokenize through the engine's /tokenize endpoint",
			Destination: &engineTokenizer,
		},
		&cli.StringFlag{
			Name:        "hf-token",
			Usage:       "hub access token for gated repos (env HF_TOKEN)",
			Destination: &hfToken,
		},
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "tokenizer download cache (env PARLEY_CACHE_DIR)",
			Destination: &cacheDir,
		},
	}
}

func generationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-new-tokens",
			Aliases:     []string{"n"},
			Usage:       "maximum tokens generated per turn",
			Value:       config.DefaultMaxNewTokens,
			Destination: &maxNewTokens,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature",
			Value:       0.8,
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Aliases:     []string{"top_k"},
			Usage:       "top-k sampling parameter",
			Value:       40,
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Aliases:     []string{"top_p"},
			Usage:       "top-p sampling parameter",
			Value:       0.95,
			Destination: &topP,
		},
		&cli.Float64Flag{
			Name:        "min-p",
			Aliases:     []string{"min_p"},
			Usage:       "min-p sampling parameter (0 = disabled)",
			Value:       0.05,
			Destination: &minP,
		},
		&cli.Float64Flag{
			Name:        "repeat-penalty",
			Aliases:     []string{"repeat_penalty"},
			Usage:       "repetition penalty (1.0 = disabled)",
			Value:       1.1,
			Destination: &repeatPenalty,
		},
		&cli.Int64Flag{
			Name:        "repeat-last-n",
			Aliases:     []string{"repeat_last_n"},
			Usage:       "last n tokens to penalize",
			Value:       64,
			Destination: &repeatLastN,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (-1 = random)",
			Value:       -1,
			Destination: &seed,
		},
		&cli.StringSliceFlag{
			Name:        "stop",
			Usage:       "extra closing tag that ends a reply (repeatable)",
			Destination: &stopSequences,
		},
	}
}

func historyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "history-db",
			Usage:       "SQLite file recording transcripts (empty disables recording)",
			Destination: &historyDB,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func flagGroups(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
