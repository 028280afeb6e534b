package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamilpajak/nourish/internal/llm"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable the loader reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "OPENAI_API_KEY",
		"NOURISH_DATABASE_URL", "NOURISH_DATABASE_PATH", "NOURISH_SERVER_PORT",
		"NOURISH_SERVER_ALLOWED_ORIGINS", "NOURISH_LLM_PROVIDER", "NOURISH_LLM_MODEL",
		"NOURISH_LLM_OPEN_TIMEOUT", "NOURISH_EMBEDDING_API_KEY", "NOURISH_LOGGING_LEVEL",
		"NOURISH_AUTH_ISSUER",
	} {
		if old, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { os.Setenv(key, old) })
		}
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nourish.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewManager_Defaults(t *testing.T) {
	clearEnv(t)

	m, err := NewManager("")
	require.NoError(t, err)
	cfg := m.Config()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(20), cfg.Server.MaxUploadMB)
	assert.False(t, cfg.Database.Postgres())
	assert.Equal(t, "nourish.db", filepath.Base(cfg.Database.Path))
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Knowledge.TopK)
	assert.Equal(t, 64, cfg.Knowledge.IndexBatch)
	assert.False(t, cfg.Auth.Enabled())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, m.Validate())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOURISH_SERVER_PORT", "9090")
	t.Setenv("NOURISH_LLM_PROVIDER", "anthropic")
	t.Setenv("NOURISH_LLM_OPEN_TIMEOUT", "1m")
	t.Setenv("NOURISH_LOGGING_LEVEL", "debug")
	t.Setenv("NOURISH_AUTH_ISSUER", "https://clinic.example")
	t.Setenv("DATABASE_URL", "postgres://localhost/nourish")
	t.Setenv("OPENAI_API_KEY", "sk-embed")

	m, err := NewManager("")
	require.NoError(t, err)
	cfg := m.Config()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, time.Minute, cfg.LLM.OpenTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Auth.Enabled())
	assert.True(t, cfg.Database.Postgres())
	assert.Equal(t, "postgres://localhost/nourish", cfg.Database.URL)
	assert.Equal(t, "sk-embed", cfg.Embedding.APIKey)
}

func TestNewManager_PrefixedVariableWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://generic")
	t.Setenv("NOURISH_DATABASE_URL", "postgres://specific")

	m, err := NewManager("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://specific", m.Config().Database.URL)
}

func TestNewManager_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 7000
  allowed_origins: [https://clinic.example]
database:
  path: /tmp/clinic.db
llm:
  provider: google
  model: gemini-2.5-pro
knowledge:
  top_k: 5
logging:
  format: json
`)

	m, err := NewManager(path)
	require.NoError(t, err)
	cfg := m.Config()

	assert.Equal(t, path, m.ConfigFile())
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"https://clinic.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/tmp/clinic.db", cfg.Database.Path)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Knowledge.TopK)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Environment beats the file.
	t.Setenv("NOURISH_SERVER_PORT", "7100")
	require.NoError(t, m.Reload())
	assert.Equal(t, 7100, m.Config().Server.Port)
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewManager_InvalidFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server: [unclosed")

	_, err := NewManager(path)
	assert.Error(t, err)
}

func TestBindFlag(t *testing.T) {
	clearEnv(t)
	m, err := NewManager("")
	require.NoError(t, err)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	require.NoError(t, m.BindFlag("database.path", flags.Lookup("db")))

	// An unset flag keeps the default.
	assert.Equal(t, "nourish.db", filepath.Base(m.Config().Database.Path))

	require.NoError(t, flags.Set("db", "/tmp/flag.db"))
	require.NoError(t, m.BindFlag("database.path", flags.Lookup("db")))
	assert.Equal(t, "/tmp/flag.db", m.Config().Database.Path)

	assert.Error(t, m.BindFlag("llm.model", nil))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080, MaxUploadMB: 20},
			Database:  DatabaseConfig{Path: "nourish.db"},
			LLM:       LLMConfig{Provider: "openai"},
			Knowledge: KnowledgeConfig{TopK: 3, IndexBatch: 64},
			Logging:   LoggingConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"postgres needs no path", func(c *Config) { c.Database = DatabaseConfig{URL: "postgres://x"} }, ""},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max upload size"},
		{"no store", func(c *Config) { c.Database.Path = "" }, "database path is required"},
		{"provider", func(c *Config) { c.LLM.Provider = "mistral" }, "unknown provider"},
		{"rate", func(c *Config) { c.LLM.RequestsPerSecond = -1 }, "requests per second"},
		{"top k", func(c *Config) { c.Knowledge.TopK = 0 }, "top_k"},
		{"index batch", func(c *Config) { c.Knowledge.IndexBatch = 0 }, "index_batch"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLLMConfig(t *testing.T) {
	c := LLMConfig{
		Provider:          "Google",
		Model:             "gemini-2.5-pro",
		APIKey:            "key",
		RequestsPerSecond: 1.5,
		Burst:             2,
		FailureThreshold:  5,
		OpenTimeout:       time.Minute,
	}

	client := c.Client()
	assert.Equal(t, llm.ProviderGoogle, client.Provider)
	assert.Equal(t, "gemini-2.5-pro", client.Model)
	assert.Equal(t, "key", client.APIKey)

	guard := c.Guard()
	assert.Equal(t, 1.5, guard.RequestsPerSecond)
	assert.Equal(t, 2, guard.Burst)
	assert.Equal(t, uint32(5), guard.FailureThreshold)
	assert.Equal(t, time.Minute, guard.OpenTimeout)
}
