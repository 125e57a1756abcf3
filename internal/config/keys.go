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
		key: "server.port", typ: kInt, env: "RADAR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "RADAR_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "interpreter.base_url", typ: kString, env: "RADAR_INTERPRET_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Interpreter.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Interpreter.BaseURL },
	},
	{
		key: "interpreter.api_key", typ: kString, env: "RADAR_INTERPRET_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Interpreter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Interpreter.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RADAR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "flow.debounce_window_ms", typ: kInt, env: "RADAR_FLOW_DEBOUNCE_WINDOW_MS",
		apply:   func(cfg *Config, v any) { cfg.Flow.DebounceWindowMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Flow.DebounceWindowMS },
	},
	{
		key: "flow.min_input_len", typ: kInt, env: "RADAR_FLOW_MIN_INPUT_LEN",
		apply:   func(cfg *Config, v any) { cfg.Flow.MinInputLen = v.(int) },
		extract: func(cfg Config) any { return cfg.Flow.MinInputLen },
	},
	{
		key: "monitor.poll_interval_sec", typ: kInt, env: "RADAR_MONITOR_POLL_INTERVAL_SEC",
		apply:   func(cfg *Config, v any) { cfg.Monitor.PollIntervalSec = v.(int) },
		extract: func(cfg Config) any { return cfg.Monitor.PollIntervalSec },
	},
	{
		key: "log.level", typ: kString, env: "RADAR_LOG_LEVEL",
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
		}
	}
}
