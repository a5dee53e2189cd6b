package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SUPPORT"

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	Completion CompletionConfig `mapstructure:"completion"`
	Store      StoreConfig      `mapstructure:"store"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Log        LogConfig        `mapstructure:"log"`
}

type CompletionConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// ParamPrefix enables API key lookup in SSM Parameter Store when no key is
	// configured directly.
	ParamPrefix string `mapstructure:"param_prefix"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	DynamoTable string `mapstructure:"dynamo_table"`
}

type AgentConfig struct {
	ContextTurns     int    `mapstructure:"context_turns"`
	MaxQueryLength   int    `mapstructure:"max_query_length"`
	ParallelClassify bool   `mapstructure:"parallel_classify"`
	PromptsFile      string `mapstructure:"prompts_file"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("completion.provider", ProviderOpenAI)
	v.SetDefault("completion.model", "")
	v.SetDefault("completion.base_url", "")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.temperature", 0.0)
	v.SetDefault("completion.timeout", 30*time.Second)
	v.SetDefault("completion.param_prefix", "")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.sqlite_path", "data/support-agent.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.dynamo_table", "")

	v.SetDefault("agent.context_turns", 6)
	v.SetDefault("agent.max_query_length", 2000)
	v.SetDefault("agent.parallel_classify", false)
	v.SetDefault("agent.prompts_file", "")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.poll_timeout", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration from defaults, an optional YAML file, and the
// environment. Environment variables use the SUPPORT_ prefix with dots
// replaced by underscores (SUPPORT_STORE_BACKEND). An empty path looks for
// support-agent.yaml in the working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("support-agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	applyWellKnownEnv(v, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyWellKnownEnv fills unset secrets from the conventional unprefixed
// variables.
func applyWellKnownEnv(v *viper.Viper, cfg *Config) {
	_ = v.BindEnv("fallback.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("fallback.gemini_api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("fallback.telegram_token", "TELEGRAM_TOKEN")
	_ = v.BindEnv("fallback.database_url", "DATABASE_URL")

	if cfg.Completion.APIKey == "" {
		switch cfg.Completion.Provider {
		case ProviderOpenAI:
			cfg.Completion.APIKey = v.GetString("fallback.openai_api_key")
		case ProviderGemini:
			cfg.Completion.APIKey = v.GetString("fallback.gemini_api_key")
		}
	}
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = v.GetString("fallback.telegram_token")
	}
	if cfg.Store.PostgresDSN == "" {
		cfg.Store.PostgresDSN = v.GetString("fallback.database_url")
	}
}

func (c *Config) Validate() error {
	switch c.Completion.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("config: completion.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Completion.Provider)
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		return fmt.Errorf("config: completion.temperature must be 0-2, got %v", c.Completion.Temperature)
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("config: completion.timeout must be positive, got %v", c.Completion.Timeout)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("config: store.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("config: store.postgres_dsn (or DATABASE_URL) is required for the postgres backend")
		}
	case BackendDynamoDB:
		if strings.TrimSpace(c.Store.DynamoTable) == "" {
			return errors.New("config: store.dynamo_table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("config: unknown store.backend %q", c.Store.Backend)
	}

	if c.Agent.ContextTurns < 1 || c.Agent.ContextTurns > 100 {
		return fmt.Errorf("config: agent.context_turns must be 1-100, got %d", c.Agent.ContextTurns)
	}
	if c.Agent.MaxQueryLength < 1 {
		return fmt.Errorf("config: agent.max_query_length must be positive, got %d", c.Agent.MaxQueryLength)
	}
	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("config: telegram.poll_timeout must not be negative, got %d", c.Telegram.PollTimeout)
	}
	return nil
}

// RequireCompletionKey reports whether a completion key can be obtained,
// either directly or through SSM.
func (c *Config) RequireCompletionKey() error {
	if c.Completion.APIKey == "" && c.Completion.ParamPrefix == "" {
		return fmt.Errorf("config: no API key for provider %q: set completion.api_key, the provider env var, or completion.param_prefix", c.Completion.Provider)
	}
	return nil
}
