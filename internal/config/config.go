// Package config loads service configuration from a flat JSON config file at
// $XDG_CONFIG_HOME/kisanmitra/config.json, with KISANMITRA_* environment
// variables overriding file values. Secrets are environment-only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Answer   AnswerConfig
	Pipeline PipelineConfig
	API      APIConfig
	Reaper   ReaperConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
	// MaxConns caps concurrently accepted connections on the listener.
	MaxConns int
}

type StorageConfig struct {
	DataDir string
}

// AnswerConfig selects and configures the answering capability.
type AnswerConfig struct {
	Provider         string // "ollama" or "openrouter"
	Model            string
	OllamaBaseURL    string
	OpenRouterAPIKey string
}

// PipelineConfig bounds each external capability call. Values are duration
// strings; empty or "0" disables the bound.
type PipelineConfig struct {
	ASRTimeout    string
	AnswerTimeout string
	TTSTimeout    string
}

type APIConfig struct {
	// AdminToken protects the management routes.
	AdminToken string
	AskRPS     float64
	AskBurst   int
}

// ReaperConfig controls the orphan artifact sweeper. An empty or "0"
// interval disables it.
type ReaperConfig struct {
	Interval  string
	Retention string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     8000,
			MaxConns: 256,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Answer: AnswerConfig{
			Provider:      "ollama",
			Model:         "mistral-nemo",
			OllamaBaseURL: "http://localhost:11434",
		},
		Pipeline: PipelineConfig{
			ASRTimeout:    "30s",
			AnswerTimeout: "90s",
			TTSTimeout:    "30s",
		},
		API: APIConfig{
			AskRPS:   1,
			AskBurst: 3,
		},
		Reaper: ReaperConfig{
			Interval:  "1h",
			Retention: "24h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "kisanmitra-data"
		}
	}
	return filepath.Join(dir, "kisanmitra")
}

// Load reads configuration from the config file and environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.AdminToken == "" {
		return Config{}, fmt.Errorf("missing required config: admin token. Set it via environment variable KISANMITRA_ADMIN_TOKEN")
	}
	switch cfg.Answer.Provider {
	case "ollama":
	case "openrouter":
		if cfg.Answer.OpenRouterAPIKey == "" {
			return Config{}, fmt.Errorf("missing required config: OpenRouter API key. Set it via environment variable KISANMITRA_OPENROUTER_API_KEY")
		}
	default:
		return Config{}, fmt.Errorf("unknown answer provider %q (want ollama or openrouter)", cfg.Answer.Provider)
	}

	return cfg, nil
}
