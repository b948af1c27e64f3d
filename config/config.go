package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort    string
	AppMode    string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string

	// Upload engine tuning. Sizes are bytes.
	ChunkSize            int64
	SyncThreshold        int64
	AssemblyBatchSize    int
	AssemblyWorkers      int
	AssemblyMaxAttempts  int
	SessionTTLHours      int
	CleanupIntervalMin   int
	CleanupOlderThanHour int
}

const (
	DefaultChunkSize     = 1 << 20  // 1 MiB
	DefaultSyncThreshold = 50 << 20 // 50 MiB
)

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),
		AppMode:    getEnv("APP_MODE", "debug"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "filedepot"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		S3Region:     getEnv("S3_REGION", ""),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3PublicBase: getEnv("S3_PUBLIC_BASE", ""),

		ChunkSize:            getEnvAsInt64("UPLOAD_CHUNK_SIZE", DefaultChunkSize),
		SyncThreshold:        getEnvAsInt64("UPLOAD_SYNC_THRESHOLD", DefaultSyncThreshold),
		AssemblyBatchSize:    getEnvAsInt("ASSEMBLY_BATCH_SIZE", 10),
		AssemblyWorkers:      getEnvAsInt("ASSEMBLY_WORKERS", 4),
		AssemblyMaxAttempts:  getEnvAsInt("ASSEMBLY_MAX_ATTEMPTS", 5),
		SessionTTLHours:      getEnvAsInt("SESSION_TTL_HOURS", 24),
		CleanupIntervalMin:   getEnvAsInt("CLEANUP_INTERVAL_MIN", 60),
		CleanupOlderThanHour: getEnvAsInt("CLEANUP_OLDER_THAN_HOURS", 24),
	}
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

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return fallback
}
