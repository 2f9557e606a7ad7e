package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KISANMITRA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "KISANMITRA_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KISANMITRA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "answer.provider", typ: kString, env: "KISANMITRA_ANSWER_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Answer.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.Provider },
	},
	{
		key: "answer.model", typ: kString, env: "KISANMITRA_ANSWER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Answer.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.Model },
	},
	{
		key: "answer.ollama_base_url", typ: kString, env: "KISANMITRA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Answer.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.OllamaBaseURL },
	},
	{
		key: "answer.openrouter_api_key", typ: kString, env: "KISANMITRA_OPENROUTER_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Answer.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.OpenRouterAPIKey },
	},
	{
		key: "pipeline.asr_timeout", typ: kString, env: "KISANMITRA_PIPELINE_ASR_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.ASRTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.ASRTimeout },
	},
	{
		key: "pipeline.answer_timeout", typ: kString, env: "KISANMITRA_PIPELINE_ANSWER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.AnswerTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.AnswerTimeout },
	},
	{
		key: "pipeline.tts_timeout", typ: kString, env: "KISANMITRA_PIPELINE_TTS_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TTSTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.TTSTimeout },
	},
	{
		key: "api.admin_token", typ: kString, env: "KISANMITRA_ADMIN_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.API.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.API.AdminToken },
	},
	{
		key: "api.ask_rps", typ: kFloat, env: "KISANMITRA_API_ASK_RPS",
		apply:   func(cfg *Config, v any) { cfg.API.AskRPS = v.(float64) },
		extract: func(cfg Config) any { return cfg.API.AskRPS },
	},
	{
		key: "api.ask_burst", typ: kInt, env: "KISANMITRA_API_ASK_BURST",
		apply:   func(cfg *Config, v any) { cfg.API.AskBurst = v.(int) },
		extract: func(cfg Config) any { return cfg.API.AskBurst },
	},
	{
		key: "reaper.interval", typ: kString, env: "KISANMITRA_REAPER_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Reaper.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Reaper.Interval },
	},
	{
		key: "reaper.retention", typ: kString, env: "KISANMITRA_REAPER_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Reaper.Retention = v.(string) },
		extract: func(cfg Config) any { return cfg.Reaper.Retention },
	},
	{
		key: "log.level", typ: kString, env: "KISANMITRA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
