package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the storefront builder service
type Config struct {
	// Server
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string

	// Storage
	DatabaseURL   string
	LocalCacheDSN string
	RedisURL      string
	NATSURL       string

	// GCP
	GCPProjectID string

	// Assets
	SupabaseURL         string
	SupabaseKey         string
	AssetBucket         string
	PlaceholderImageURL string
	MirrorRemoteImages  bool

	// AI
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIImageModel string

	// Providers
	ProviderRateLimit int // requests per second
	PreviewPageSize   int

	// Cloud sync
	CloudSyncMaxRetries int
	CloudSyncRetryDelay time.Duration
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to read .env: %v", err)
	}

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		DatabaseURL:   databaseURL(),
		LocalCacheDSN: getEnv("LOCAL_CACHE_DSN", "file:storefront-cache.db"),
		RedisURL:      getEnv("REDIS_URL", ""),
		NATSURL:       getEnv("NATS_URL", ""),

		GCPProjectID: getEnv("GCP_PROJECT_ID", ""),

		SupabaseURL:         getEnv("SUPABASE_URL", ""),
		SupabaseKey:         getEnv("SUPABASE_KEY", ""),
		AssetBucket:         getEnv("ASSET_BUCKET", "storefront-assets"),
		PlaceholderImageURL: getEnv("PLACEHOLDER_IMAGE_URL", "https://placehold.co/600x600?text=Product"),
		MirrorRemoteImages:  getEnvAsBool("MIRROR_REMOTE_IMAGES", false),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),

		ProviderRateLimit: getEnvAsInt("PROVIDER_RATE_LIMIT", 2),
		PreviewPageSize:   getEnvAsInt("PREVIEW_PAGE_SIZE", 20),

		CloudSyncMaxRetries: getEnvAsInt("CLOUD_SYNC_MAX_RETRIES", 3),
		CloudSyncRetryDelay: getEnvAsDuration("CLOUD_SYNC_RETRY_DELAY", time.Second),
	}

	if config.DatabaseURL == "" {
		log.Println("Warning: no database configured, stores will stay local-only")
	}
	if config.GCPProjectID == "" {
		log.Println("Warning: GCP_PROJECT_ID not set, stored provider credentials will be disabled")
	}
	if config.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, prompt generation will fail")
	}

	return config
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// databaseURL prefers DATABASE_URL and otherwise builds one from DB_* when
// DB_HOST is set
func databaseURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		return ""
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "postgres")
	dbPassword := secrets.GetDBPassword()
	dbName := getEnv("DB_NAME", "tesseract_hub")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
