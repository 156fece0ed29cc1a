// Package config loads the parley configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config mirrors ~/.config/parley/config.yaml. Numeric fields are pointers
// so "not set" is distinguishable from zero.
type Config struct {
	Family          string `yaml:"family" toml:"family"`
	RepoID          string `yaml:"repo_id" toml:"repo_id"`
	TokenizerJSON   string `yaml:"tokenizer_json" toml:"tokenizer_json"`
	TokenizerConfig string `yaml:"tokenizer_config" toml:"tokenizer_config"`
	EngineURL       string `yaml:"engine_url" toml:"engine_url"`
	SystemPrompt    string `yaml:"system_prompt" toml:"system_prompt"`
	MaxNewTokens    *int   `yaml:"max_new_tokens" toml:"max_new_tokens"`

	Temperature   *float64 `yaml:"temperature" toml:"temperature"`
	TopK          *int     `yaml:"top_k" toml:"top_k"`
	TopP          *float64 `yaml:"top_p" toml:"top_p"`
	MinP          *float64 `yaml:"min_p" toml:"min_p"`
	RepeatPenalty *float64 `yaml:"repeat_penalty" toml:"repeat_penalty"`
	Seed          *int64   `yaml:"seed" toml:"seed"`

	// StopSequences are extra closing tags encoded into multi-token stops.
	StopSequences []string `yaml:"stop_sequences" toml:"stop_sequences"`

	StreamMode string `yaml:"stream_mode" toml:"stream_mode"`
	LogLevel   string `yaml:"log_level" toml:"log_level"`
	LogFormat  string `yaml:"log_format" toml:"log_format"`

	HistoryDB     string `yaml:"history_db" toml:"history_db"`
	ServerAddress string `yaml:"server_address" toml:"server_address"`
	HFToken       string `yaml:"hf_token" toml:"hf_token"`
	CacheDir      string `yaml:"cache_dir" toml:"cache_dir"`
}

// Built-in defaults used when neither a flag nor the file sets a value.
const (
	DefaultRepoID        = "coreml-projects/Llama-2-7b-chat-coreml"
	DefaultSystemPrompt  = "You are a helpful assistant."
	DefaultMaxNewTokens  = 512
	DefaultEngineURL     = "http://127.0.0.1:8080"
	DefaultServerAddress = "127.0.0.1:8081"
	DefaultStreamMode    = "instant"
)

// DefaultPath is <user config dir>/parley/config.yaml, or "" when the user
// config dir is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "parley", "config.yaml")
}

// Load reads path, choosing the decoder from its extension.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension %q", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional is Load, except a missing file yields a zero Config. An
// explicitly requested file must exist.
func LoadOptional(path string, explicit bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return Config{}, nil
	}
	return cfg, err
}

// EngineURLFromEnv returns PARLEY_ENGINE_URL when set.
func EngineURLFromEnv() string {
	return os.Getenv("PARLEY_ENGINE_URL")
}
