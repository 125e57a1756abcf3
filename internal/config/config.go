// Package config loads radard configuration from a JSON config file
// and RADAR_* environment variables layered over built-in defaults.
package config

import "fmt"

type Config struct {
	Server      ServerConfig
	Interpreter InterpreterConfig
	Storage     StorageConfig
	Flow        FlowConfig
	Monitor     MonitorConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type InterpreterConfig struct {
	BaseURL string
	APIKey  string
}

type StorageConfig struct {
	DataDir string
}

type FlowConfig struct {
	DebounceWindowMS int
	MinInputLen      int
}

type MonitorConfig struct {
	PollIntervalSec int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Interpreter: InterpreterConfig{
			BaseURL: "https://interpret.radarhq.com",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Flow: FlowConfig{
			DebounceWindowMS: 800,
			MinInputLen:      3,
		},
		Monitor: MonitorConfig{
			PollIntervalSec: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/radar/config.json, then applies RADAR_* environment
// overrides. Secrets (API token, interpretation key) come from the
// environment only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Interpreter.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: interpretation service API key. Set it via environment variable RADAR_INTERPRET_API_KEY")
	}
	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: dashboard API token. Set it via environment variable RADAR_API_TOKEN")
	}

	return cfg, nil
}
