package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Grounding GroundingConfig
	Analysis  AnalysisConfig
	Ingestion IngestionConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	BodyLimit          int
	AllowedOrigins     []string
	TurnsPerMinute     int
	IsDevelopment      bool
	MaxMessageLength   int
	MaxDocumentsPerReq int
	IdleWorkspaceMins  int
}

// StorageConfig selects the durable backend of the extraction cache:
// "sqlite", "postgres" or "redis".
type StorageConfig struct {
	Backend string
}

type SQLiteConfig struct {
	Path string
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type LLMConfig struct {
	Provider        string
	Model           string
	VisionModel     string
	APIKey          string
	BaseURL         string
	Temperature     float32
	MaxTokens       int
	CountTokens     bool
	BreakerFailures int
	BreakerCooldown int
	TimeoutSeconds  int
}

type GroundingConfig struct {
	MaxTokens   int
	Temperature float32
}

type AnalysisConfig struct {
	MaxImageBytes int
	MaxTokens     int
}

type IngestionConfig struct {
	WatchDir string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/genai")

	v.SetEnvPrefix("GENAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindProviderKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.LLM.APIKey == "" {
		config.LLM.APIKey = providerKey(v, config.LLM.Provider)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Storage.Backend == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required for the postgres backend")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 50*1024*1024)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.turnsPerMinute", 30)
	v.SetDefault("server.isDevelopment", false)
	v.SetDefault("server.maxMessageLength", 8000)
	v.SetDefault("server.maxDocumentsPerReq", 20)
	v.SetDefault("server.idleWorkspaceMins", 120)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("sqlite.path", "./data/genai.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlHours", 0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.visionModel", "gpt-4o")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 0)
	v.SetDefault("llm.countTokens", false)
	v.SetDefault("llm.breakerFailures", 5)
	v.SetDefault("llm.breakerCooldown", 30)
	v.SetDefault("llm.timeoutSeconds", 0)

	v.SetDefault("grounding.maxTokens", 1000)
	v.SetDefault("grounding.temperature", 0.3)

	v.SetDefault("analysis.maxImageBytes", 20*1024*1024)
	v.SetDefault("analysis.maxTokens", 1500)

	v.SetDefault("ingestion.watchDir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

// bindProviderKeys keeps the provider-native variable names working next to
// GENAI_LLM_APIKEY.
func bindProviderKeys(v *viper.Viper) {
	_ = v.BindEnv("openaiKey", "OPENAI_API_KEY")
	_ = v.BindEnv("geminiKey", "GEMINI_API_KEY")
}

func providerKey(v *viper.Viper, provider string) string {
	if provider == "gemini" {
		return v.GetString("geminiKey")
	}
	return v.GetString("openaiKey")
}
