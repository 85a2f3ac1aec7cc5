package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string
	LogMode string

	DBDriver   string
	DBPath     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	StorageBackend string
	UploadDir      string
	UploadMaxBytes int64
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string
	S3PublicBase   string

	PreviewTimeout  time.Duration
	PreviewCacheTTL time.Duration

	PersistQueueSize int
	PersistTimeout   time.Duration
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StorageLocal = "local"
	StorageS3    = "s3"
)

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "3001"),
		AppMode: getEnv("APP_MODE", "debug"),
		LogMode: getEnv("LOG_MODE", "development"),

		DBDriver:   getEnv("DB_DRIVER", DriverSQLite),
		DBPath:     getEnv("DB_PATH", "database.sqlite"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "vox_chat"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		StorageBackend: getEnv("STORAGE_BACKEND", StorageLocal),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		UploadMaxBytes: int64(getEnvAsInt("UPLOAD_MAX_BYTES", 50*1024*1024)),
		S3Region:       getEnv("S3_REGION", ""),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3PublicBase:   getEnv("S3_PUBLIC_BASE", ""),

		PreviewTimeout:  getEnvAsDuration("PREVIEW_TIMEOUT", 5*time.Second),
		PreviewCacheTTL: getEnvAsDuration("PREVIEW_CACHE_TTL", time.Hour),

		PersistQueueSize: getEnvAsInt("PERSIST_QUEUE_SIZE", 1024),
		PersistTimeout:   getEnvAsDuration("PERSIST_TIMEOUT", 5*time.Second),
	}
}

// RedisEnabled reports whether a redis host was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
