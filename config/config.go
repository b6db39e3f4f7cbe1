package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// sensible development defaults.
type Config struct {
	// HTTP server
	ListenAddr string

	// MySQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO stream archive
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	ArchiveStreams bool // copy resolved streams into the archive bucket

	// Metadata provider
	MetaAPIURL string

	// Source adapters
	SourceOrder          []string // fallback chain, tried in order
	AllowParallelPending bool     // keep trying later sources while a job is pending
	DebridAPIURL         string
	DebridAPIKey         string
	MirrorHosts          []string // mirrorstream mirror base URLs
	ScrapeBaseURL        string   // pagescrape search endpoint
	DropDir              string   // local folder where debrid downloads land, empty disables the watcher

	// Logging
	LogLevel  string
	LogPath   string
	LogMaxMB  int
	LogMaxAge int
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

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvList gets a comma-separated environment variable as a string slice.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "tunesync"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "tunesync"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		ArchiveStreams: getEnvBool("ARCHIVE_STREAMS", false),

		MetaAPIURL: getEnv("META_API_URL", "http://localhost:3000"),

		SourceOrder:          getEnvList("SOURCE_ORDER", []string{"debrid", "mirrorstream", "pagescrape"}),
		AllowParallelPending: getEnvBool("ALLOW_PARALLEL_PENDING", false),
		DebridAPIURL:         getEnv("DEBRID_API_URL", "https://api.debrid.example/v1"),
		DebridAPIKey:         os.Getenv("DEBRID_API_KEY"),
		MirrorHosts:          getEnvList("MIRROR_HOSTS", nil),
		ScrapeBaseURL:        getEnv("SCRAPE_BASE_URL", ""),
		DropDir:              getEnv("DROP_DIR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogPath:   getEnv("LOG_PATH", "logs/tunesync.log"),
		LogMaxMB:  getEnvInt("LOG_MAX_MB", 100),
		LogMaxAge: getEnvInt("LOG_MAX_AGE", 7),
	}
}
