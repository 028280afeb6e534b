// Package config loads nourish configuration from defaults, an optional
// nourish.yaml and NOURISH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kamilpajak/nourish/internal/llm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "NOURISH"

// Config is the complete configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb"`
}

// DatabaseConfig selects the store. A non-empty URL selects PostgreSQL;
// otherwise the SQLite file at Path is used.
type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	Path        string `mapstructure:"path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// Postgres reports whether the PostgreSQL store is selected.
func (d DatabaseConfig) Postgres() bool {
	return d.URL != ""
}

// LLMConfig configures the text-completion provider and its guard.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	FailureThreshold  uint32        `mapstructure:"failure_threshold"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
}

// Client builds the provider configuration.
func (c LLMConfig) Client() llm.Config {
	return llm.Config{
		Provider: llm.Provider(strings.ToLower(c.Provider)),
		APIKey:   c.APIKey,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
	}
}

// Guard builds the rate-limit and circuit-breaker configuration.
func (c LLMConfig) Guard() llm.GuardConfig {
	return llm.GuardConfig{
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		FailureThreshold:  c.FailureThreshold,
		OpenTimeout:       c.OpenTimeout,
	}
}

// EmbeddingConfig configures the OpenAI embeddings client. An empty APIKey
// disables indexing and retrieval.
type EmbeddingConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// KnowledgeConfig tunes knowledge-bank retrieval.
type KnowledgeConfig struct {
	TopK       int `mapstructure:"top_k"`
	IndexBatch int `mapstructure:"index_batch"`
}

// AuthConfig enables JWT authentication on the API when Issuer is set.
type AuthConfig struct {
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
	JWKSURL  string `mapstructure:"jwks_url"`
}

// Enabled reports whether the API requires tokens.
func (a AuthConfig) Enabled() bool {
	return a.Issuer != ""
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Manager loads configuration with Viper.
type Manager struct {
	v      *viper.Viper
	file   string
	config *Config
}

// NewManager loads configuration. file may name a config file explicitly;
// when empty, nourish.yaml is looked up in the working directory and
// ~/.nourish and is optional.
func NewManager(file string) (*Manager, error) {
	m := &Manager{v: viper.New(), file: file}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) load() error {
	v := m.v
	if m.file != "" {
		v.SetConfigFile(m.file)
	} else {
		v.SetConfigName("nourish")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(homeDir(), ".nourish"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional variables shared with other tools.
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("embedding.api_key", EnvPrefix+"_EMBEDDING_API_KEY", "OPENAI_API_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if m.file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return m.decode()
}

func (m *Manager) decode() error {
	cfg := &Config{}
	if err := m.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	m.config = cfg
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	// Generation requests hold the connection open while the model answers.
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 20)

	v.SetDefault("database.url", "")
	v.SetDefault("database.path", filepath.Join(homeDir(), ".nourish", "nourish.db"))
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("llm.provider", string(llm.ProviderOpenAI))
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.burst", 4)
	v.SetDefault("llm.failure_threshold", 3)
	v.SetDefault("llm.open_timeout", "30s")

	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")

	v.SetDefault("knowledge.top_k", 3)
	v.SetDefault("knowledge.index_batch", 64)

	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.jwks_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// BindFlag lets a command-line flag override key. The flag wins only when
// it was set explicitly.
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	if err := m.v.BindPFlag(key, flag); err != nil {
		return err
	}
	return m.decode()
}

// Config returns the loaded configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// ConfigFile returns the file the configuration was read from, if any.
func (m *Manager) ConfigFile() string {
	return m.v.ConfigFileUsed()
}

// Reload re-reads the configuration sources.
func (m *Manager) Reload() error {
	return m.load()
}

// Validate checks the loaded configuration.
func (m *Manager) Validate() error {
	return m.config.Validate()
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d MB", c.Server.MaxUploadMB)
	}

	if !c.Database.Postgres() && c.Database.Path == "" {
		return errors.New("database path is required when no database URL is set")
	}

	if _, err := llm.ParseProvider(c.LLM.Provider); err != nil {
		return err
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid requests per second: %v", c.LLM.RequestsPerSecond)
	}

	if c.Knowledge.TopK < 1 || c.Knowledge.TopK > 20 {
		return fmt.Errorf("knowledge top_k must be between 1 and 20, got %d", c.Knowledge.TopK)
	}
	if c.Knowledge.IndexBatch < 1 {
		return fmt.Errorf("knowledge index_batch must be positive, got %d", c.Knowledge.IndexBatch)
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
