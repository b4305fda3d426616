package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// AWS collaborators
	AWSRegion      string `mapstructure:"AWS_REGION"`
	S3Bucket       string `mapstructure:"S3_BUCKET"`
	UsersTable     string `mapstructure:"USERS_TABLE"`
	DocumentsTable string `mapstructure:"DOCUMENTS_TABLE"`
	// Secondary index on (user_id, doc_hash) used for duplicate detection.
	FingerprintIndex string `mapstructure:"FINGERPRINT_INDEX"`

	// Record index backend: "dynamodb", "postgres" or "memory".
	IndexBackend string `mapstructure:"INDEX_BACKEND"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`

	// Model configuration
	BedrockModelID string  `mapstructure:"BEDROCK_MODEL_ID"`
	MaxTokens      int     `mapstructure:"MAX_TOKENS"`
	Temperature    float64 `mapstructure:"TEMPERATURE"`

	// Knowledge base (optional; retrieval is skipped when unset)
	KnowledgeBaseID string `mapstructure:"KNOWLEDGE_BASE_ID"`

	// Session tokens
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	SessionTTLMin int    `mapstructure:"SESSION_TTL_MINUTES"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AWS_REGION", "us-west-2")
	v.SetDefault("S3_BUCKET", "health-companion-fhir-data")
	v.SetDefault("USERS_TABLE", "HealthCompanionUsers")
	v.SetDefault("DOCUMENTS_TABLE", "MedicalDocuments")
	v.SetDefault("FINGERPRINT_INDEX", "user_id-doc_hash-index")
	v.SetDefault("INDEX_BACKEND", "dynamodb")
	v.SetDefault("BEDROCK_MODEL_ID", "anthropic.claude-3-5-sonnet-20241022-v2:0")
	v.SetDefault("MAX_TOKENS", 2048)
	v.SetDefault("TEMPERATURE", 0.7)
	v.SetDefault("SESSION_TTL_MINUTES", 720)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("AWS_REGION")
	v.BindEnv("S3_BUCKET")
	v.BindEnv("USERS_TABLE")
	v.BindEnv("DOCUMENTS_TABLE")
	v.BindEnv("FINGERPRINT_INDEX")
	v.BindEnv("INDEX_BACKEND")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("BEDROCK_MODEL_ID")
	v.BindEnv("MAX_TOKENS")
	v.BindEnv("TEMPERATURE")
	v.BindEnv("KNOWLEDGE_BASE_ID")
	v.BindEnv("SESSION_SECRET")
	v.BindEnv("SESSION_TTL_MINUTES")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() && cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-session-secret"
		log.Println("WARNING: SESSION_SECRET not set, using development default.")
		log.Println("WARNING: Do NOT use this configuration in production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// KnowledgeBaseEnabled reports whether chat answers should be augmented with
// knowledge-base retrieval.
func (c *Config) KnowledgeBaseEnabled() bool {
	return c.KnowledgeBaseID != ""
}

// Validate checks that the configuration is safe to run. In production a real
// SESSION_SECRET is required, and the selected index backend must have its
// connection settings present.
func (c *Config) Validate() error {
	if c.IsProduction() && (c.SessionSecret == "" || c.SessionSecret == "dev-session-secret") {
		return fmt.Errorf("SESSION_SECRET is required in production")
	}

	switch c.IndexBackend {
	case "dynamodb":
		if c.UsersTable == "" || c.DocumentsTable == "" {
			return fmt.Errorf("USERS_TABLE and DOCUMENTS_TABLE are required when INDEX_BACKEND is \"dynamodb\"")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when INDEX_BACKEND is \"postgres\"")
		}
	case "memory":
		// No external settings; intended for tests and local development.
	default:
		return fmt.Errorf("INDEX_BACKEND must be \"dynamodb\", \"postgres\", or \"memory\", got %q", c.IndexBackend)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("TEMPERATURE must be between 0 and 1, got %v", c.Temperature)
	}

	return nil
}
