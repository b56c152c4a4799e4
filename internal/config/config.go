// Package config loads toolchat settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petasbytes/toolchat/internal/provider"
	"github.com/petasbytes/toolchat/internal/toolsession"
)

const (
	projectConfigName = "toolchat.yaml"
	homeConfigName    = "config.yaml"

	DefaultServerCommand = "node"
	DefaultServerPath    = "vapi-doc-coding-mcp/build/index.js"
	DefaultHistoryPath   = ".toolchat/history.db"
	DefaultConversation  = "conversation.json"
	DefaultMaxRounds     = 20
)

// Config is the full CLI configuration.
type Config struct {
	Model        string `yaml:"model"`
	MaxTokens    int64  `yaml:"max_tokens"`
	MaxRounds    int    `yaml:"max_rounds"`
	WindowBudget int    `yaml:"window_budget"`

	// APIKey is normally left empty and read from ANTHROPIC_API_KEY.
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`

	Server       ServerConfig  `yaml:"server"`
	History      HistoryConfig `yaml:"history"`
	Observe      ObserveConfig `yaml:"observe"`
	Conversation string        `yaml:"conversation"`
	LogLevel     string        `yaml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ServerConfig describes the tool server process.
type ServerConfig struct {
	Command          string            `yaml:"command"`
	Args             []string          `yaml:"args"`
	Env              map[string]string `yaml:"env,omitempty"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	CallTimeout      time.Duration     `yaml:"call_timeout"`
}

type HistoryConfig struct {
	// Path of the SQLite call-history database; "off" disables it.
	Path string `yaml:"path" jsonschema:"description=SQLite database path or off"`
}

type ObserveConfig struct {
	Events       bool   `yaml:"events"`
	ArtifactsDir string `yaml:"artifacts_dir,omitempty"`
	OTelEndpoint string `yaml:"otel_endpoint,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:     string(provider.DefaultModel),
		MaxTokens: provider.DefaultMaxTokens,
		MaxRounds: DefaultMaxRounds,
		Server: ServerConfig{
			Command:          DefaultServerCommand,
			Args:             []string{DefaultServerPath},
			HandshakeTimeout: toolsession.DefaultHandshakeTimeout,
			CallTimeout:      toolsession.DefaultCallTimeout,
		},
		History:      HistoryConfig{Path: DefaultHistoryPath},
		Conversation: DefaultConversation,
		LogLevel:     "info",
	}
}

// DiscoverPath resolves the config file with first-match semantics: the
// explicit path, then ./toolchat.yaml, then ~/.toolchat/config.yaml.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)
	var candidates []string
	if explicit != "" {
		candidates = append(candidates, filepath.Clean(explicit))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, ".toolchat", homeConfigName))
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 -- path comes from explicit local config discovery
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.expand()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, set func(int64)) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		set(n)
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = d
		return nil
	}

	str("ANTHROPIC_API_KEY", &c.APIKey)
	str("ANTHROPIC_BASE_URL", &c.BaseURL)
	str("TOOLCHAT_MODEL", &c.Model)
	str("TOOLCHAT_SERVER_COMMAND", &c.Server.Command)
	if v, ok := lookup("TOOLCHAT_SERVER_PATH"); ok && strings.TrimSpace(v) != "" {
		c.Server.Args = []string{strings.TrimSpace(v)}
	}
	str("TOOLCHAT_HISTORY_DB", &c.History.Path)
	str("TOOLCHAT_CONVERSATION", &c.Conversation)
	str("TOOLCHAT_OTEL_ENDPOINT", &c.Observe.OTelEndpoint)
	str("TOOLCHAT_LOG_LEVEL", &c.LogLevel)

	return errors.Join(
		integer("TOOLCHAT_MAX_TOKENS", func(n int64) { c.MaxTokens = n }),
		integer("TOOLCHAT_MAX_ROUNDS", func(n int64) { c.MaxRounds = int(n) }),
		integer("TOOLCHAT_WINDOW_BUDGET", func(n int64) { c.WindowBudget = int(n) }),
		duration("TOOLCHAT_HANDSHAKE_TIMEOUT", &c.Server.HandshakeTimeout),
		duration("TOOLCHAT_CALL_TIMEOUT", &c.Server.CallTimeout),
	)
}

func (c *Config) expand() {
	c.Server.Command = os.ExpandEnv(c.Server.Command)
	for i, a := range c.Server.Args {
		c.Server.Args[i] = os.ExpandEnv(a)
	}
	for k, v := range c.Server.Env {
		c.Server.Env[k] = os.ExpandEnv(v)
	}
	c.History.Path = os.ExpandEnv(c.History.Path)
}

// Validate fills zero values with defaults and rejects impossible settings.
func (c *Config) Validate() error {
	def := Default()
	if strings.TrimSpace(c.Model) == "" {
		c.Model = def.Model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = def.Server.HandshakeTimeout
	}
	if c.Server.CallTimeout == 0 {
		c.Server.CallTimeout = def.Server.CallTimeout
	}
	if c.Conversation == "" {
		c.Conversation = def.Conversation
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	var errs []error
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("max_rounds must be >= 0, got %d", c.MaxRounds))
	}
	if c.WindowBudget < 0 {
		errs = append(errs, fmt.Errorf("window_budget must be >= 0, got %d", c.WindowBudget))
	}
	if strings.TrimSpace(c.Server.Command) == "" {
		errs = append(errs, errors.New("server.command is required"))
	}
	if c.Server.HandshakeTimeout < 0 || c.Server.CallTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must be positive"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// HistoryEnabled reports whether tool calls are persisted.
func (c Config) HistoryEnabled() bool {
	p := strings.TrimSpace(c.History.Path)
	return p != "" && p != "off"
}

// ToolSession converts the server section for the session manager.
func (c Config) ToolSession() toolsession.Config {
	return toolsession.Config{
		Command:          c.Server.Command,
		Args:             append([]string(nil), c.Server.Args...),
		Env:              c.Server.Env,
		HandshakeTimeout: c.Server.HandshakeTimeout,
		CallTimeout:      c.Server.CallTimeout,
		ClientName:       "toolchat",
	}
}
