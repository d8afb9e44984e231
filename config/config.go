package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only fit for local development.
const DefaultJWTSecret = "change-me"

// Config stores the application configuration.
type Config struct {
	HTTPAddr  string
	WebAppDir string // Path to the built front-end bundle, served at "/"

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO / S3 兼容存储
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	CDNBaseURL     string // Public prefix for stored objects, e.g. https://cdn.example.com/bucket

	JWTSecret string
	JWTTTL    time.Duration

	SettlementDelay       time.Duration // How long a withdrawal stays pending
	SettlementPoll        time.Duration
	SettlementMaxAttempts int
	SenderName            string // Shown in the "transfer received" notification

	EstimateTTL time.Duration
	MaxUploadMB int64
	FFprobePath string // Empty disables measuring track length

	SeedDemo     bool // Create the demo account on first start
	DemoPassword string

	LogLevel string
	LogFile  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		WebAppDir: getEnv("WEB_APP_DIR", "web/dist"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "trackmarket"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "tracks"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		CDNBaseURL:     getEnv("CDN_BASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", DefaultJWTSecret),
		JWTTTL:    getEnvDuration("JWT_TTL", 72*time.Hour),

		SettlementDelay:       getEnvDuration("SETTLEMENT_DELAY", 30*time.Second),
		SettlementPoll:        getEnvDuration("SETTLEMENT_POLL", time.Second),
		SettlementMaxAttempts: getEnvInt("SETTLEMENT_MAX_ATTEMPTS", 5),
		SenderName:            getEnv("SENDER_NAME", "Низоленко Артём"),

		EstimateTTL: getEnvDuration("ESTIMATE_TTL", 30*time.Minute),
		MaxUploadMB: int64(getEnvInt("MAX_UPLOAD_MB", 50)),
		FFprobePath: getEnv("FFPROBE_PATH", ""),

		SeedDemo:     getEnvBool("SEED_DEMO", true),
		DemoPassword: getEnv("DEMO_PASSWORD", "demo12345"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// InsecureJWTSecret reports an empty or default signing secret.
func (c *Config) InsecureJWTSecret() bool {
	return c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret
}
