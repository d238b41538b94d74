// Package config loads the TOML configuration from the user config dir.
// Environment variables override individual fields so secrets can stay out
// of the file.
package config

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const configFileName = "config.toml"

// DefaultConfigDir returns ~/.config/cellflow.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("CELLFLOW_CONFIG_DIR")); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cellflow"), nil
}

type RuntimeConfig struct {
	ID       string   `toml:"id"`
	Type     string   `toml:"type"`
	CanCode  bool     `toml:"can_execute_code"`
	CanSQL   bool     `toml:"can_execute_sql"`
	CanAI    bool     `toml:"can_execute_ai"`
	AiModels []string `toml:"ai_models,omitempty"`
}

type OpenAIConfig struct {
	Endpoint string `toml:"endpoint,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

type Config struct {
	DataDir    string        `toml:"data_dir"`
	NotebookID string        `toml:"notebook_id,omitempty"`
	ListenAddr string        `toml:"listen_addr"`
	RelayURL   string        `toml:"relay_url"`
	LogLevel   string        `toml:"log_level"`
	Runtime    RuntimeConfig `toml:"runtime"`
	OpenAI     OpenAIConfig  `toml:"openai"`
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// LoadOrInit reads config.toml, creating it with defaults on first run.
func (s *Store) LoadOrInit() (Config, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Config{}, err
	}

	path := filepath.Join(s.dir, configFileName)
	if b, err := os.ReadFile(path); err == nil {
		var cfg Config
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
		return normalize(cfg, s.dir), nil
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	cfg := normalize(Config{}, s.dir)
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (s *Store) Save(cfg Config) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(filepath.Join(s.dir, configFileName), normalize(cfg, s.dir))
}

func normalize(cfg Config, dir string) Config {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(dir, "data")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = "127.0.0.1:8741"
	}
	if strings.TrimSpace(cfg.RelayURL) == "" {
		cfg.RelayURL = "ws://" + cfg.ListenAddr + "/v1/log/ws"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Runtime.Type) == "" {
		cfg.Runtime.Type = "echo"
		cfg.Runtime.CanCode = true
	}
	if key := strings.TrimSpace(os.Getenv("CELLFLOW_OPENAI_API_KEY")); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if endpoint := strings.TrimSpace(os.Getenv("CELLFLOW_OPENAI_ENDPOINT")); endpoint != "" {
		cfg.OpenAI.Endpoint = endpoint
	}
	if model := strings.TrimSpace(os.Getenv("CELLFLOW_OPENAI_MODEL")); model != "" {
		cfg.OpenAI.Model = model
	}
	return cfg
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
