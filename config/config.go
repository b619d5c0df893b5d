// Package config loads the runtime configuration of chatbox.
//
// Values are layered: built-in defaults, then the TOML file, then an
// optional .env file, then the process environment. The resulting
// [chatbox.Settings] are the defaults beneath whatever the user has saved
// through a [Store].
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/fwojciec/chatbox"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendFS        = "fs"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

// Config is the decoded configuration file.
type Config struct {
	Storage   Storage             `toml:"storage"`
	Log       Log                 `toml:"log"`
	Providers map[string]Provider `toml:"providers"`
	Chat      Session             `toml:"chat"`
	Picture   Session             `toml:"picture"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Backend string `toml:"backend" env:"CHATBOX_STORAGE"`
	Dir     string `toml:"dir" env:"CHATBOX_DATA_DIR"`

	SQLitePath string `toml:"sqlite_path" env:"CHATBOX_SQLITE_PATH"`

	DatabaseURL string `toml:"database_url" env:"DATABASE_URL"`

	RedisAddr     string `toml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `toml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `toml:"redis_db" env:"REDIS_DB"`

	FirestoreProject     string `toml:"firestore_project" env:"FIRESTORE_PROJECT"`
	FirestoreUser        string `toml:"firestore_user" env:"FIRESTORE_USER"`
	FirestoreCredentials string `toml:"firestore_credentials" env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// Log configures the log file. The terminal belongs to the UI, so logs
// never go to stderr.
type Log struct {
	File  string `toml:"file" env:"CHATBOX_LOG"`
	Level string `toml:"level" env:"CHATBOX_LOG_LEVEL"`
}

// Provider mirrors chatbox.ProviderSettings.
type Provider struct {
	APIKey  string   `toml:"api_key"`
	APIHost string   `toml:"api_host"`
	Models  []string `toml:"models"`
}

// Session mirrors chatbox.SessionSettings.
type Session struct {
	Provider           string   `toml:"provider"`
	Model              string   `toml:"model"`
	Temperature        *float64 `toml:"temperature"`
	TopP               *float64 `toml:"top_p"`
	MaxTokens          int      `toml:"max_tokens"`
	SystemPrompt       string   `toml:"system_prompt"`
	MaxContextMessages int      `toml:"max_context_messages"`
	ThinkingBudget     int      `toml:"thinking_budget"`
}

// keys are provider credentials read only from the environment.
type keys struct {
	Gemini     string `env:"GEMINI_API_KEY"`
	OpenAI     string `env:"OPENAI_API_KEY"`
	Anthropic  string `env:"ANTHROPIC_API_KEY"`
	OllamaHost string `env:"OLLAMA_HOST"`
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	return filepath.Join(dir, "chatbox"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Storage: Storage{
			Backend:       BackendFS,
			FirestoreUser: "local",
		},
		Log: Log{Level: "info"},
	}
	if dir, err := Dir(); err == nil {
		cfg.Storage.Dir = filepath.Join(dir, "data")
		cfg.Storage.SQLitePath = filepath.Join(dir, "chatbox.db")
		cfg.Log.File = filepath.Join(dir, "chatbox.log")
	}
	return cfg
}

// Load reads the configuration file at path. An empty path selects
// config.toml in Dir, which may be absent; an explicit path must exist.
// A .env file in the working directory is loaded before the environment
// overlay is applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.toml")
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if err := env.Parse(&c.Storage); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	if err := env.Parse(&c.Log); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	var k keys
	if err := env.Parse(&k); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	c.setProvider(chatbox.ProviderGemini, func(p *Provider) { p.APIKey = k.Gemini }, k.Gemini != "")
	c.setProvider(chatbox.ProviderOpenAI, func(p *Provider) { p.APIKey = k.OpenAI }, k.OpenAI != "")
	c.setProvider(chatbox.ProviderAnthropic, func(p *Provider) { p.APIKey = k.Anthropic }, k.Anthropic != "")
	c.setProvider(chatbox.ProviderOllama, func(p *Provider) { p.APIHost = k.OllamaHost }, k.OllamaHost != "")
	return nil
}

func (c *Config) setProvider(id chatbox.ProviderID, set func(*Provider), ok bool) {
	if !ok {
		return
	}
	if c.Providers == nil {
		c.Providers = make(map[string]Provider)
	}
	p := c.Providers[string(id)]
	set(&p)
	c.Providers[string(id)] = p
}

// Validate checks the storage selection.
func (c *Config) Validate() error {
	s := c.Storage
	var missing string
	switch s.Backend {
	case BackendFS:
		if s.Dir == "" {
			missing = "dir"
		}
	case BackendSQLite:
		if s.SQLitePath == "" {
			missing = "sqlite_path"
		}
	case BackendPostgres:
		if s.DatabaseURL == "" {
			missing = "database_url"
		}
	case BackendRedis:
		if s.RedisAddr == "" {
			missing = "redis_addr"
		}
	case BackendFirestore:
		if s.FirestoreProject == "" {
			missing = "firestore_project"
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q: %w", s.Backend, chatbox.ErrValidation)
	}
	if missing != "" {
		return fmt.Errorf("config: storage %s requires %s: %w", s.Backend, missing, chatbox.ErrValidation)
	}
	return nil
}

// Settings converts the file contents to chatbox settings merged with the
// built-in defaults.
func (c *Config) Settings() chatbox.Settings {
	s := chatbox.Settings{
		ChatSession:    c.Chat.sessionSettings(),
		PictureSession: c.Picture.sessionSettings(),
	}
	if len(c.Providers) > 0 {
		s.Providers = make(map[chatbox.ProviderID]chatbox.ProviderSettings, len(c.Providers))
		for id, p := range c.Providers {
			s.Providers[chatbox.ProviderID(id)] = chatbox.ProviderSettings{
				APIKey:  p.APIKey,
				APIHost: p.APIHost,
				Models:  append([]string(nil), p.Models...),
			}
		}
	}
	return s.WithDefaults(chatbox.DefaultSettings())
}

func (s Session) sessionSettings() chatbox.SessionSettings {
	return chatbox.SessionSettings{
		Provider:           chatbox.ProviderID(s.Provider),
		ModelID:            s.Model,
		Temperature:        s.Temperature,
		TopP:               s.TopP,
		MaxTokens:          s.MaxTokens,
		SystemPrompt:       s.SystemPrompt,
		MaxContextMessages: s.MaxContextMessages,
		ThinkingBudget:     s.ThinkingBudget,
	}.Clone()
}
