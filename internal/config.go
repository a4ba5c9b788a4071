package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Public base URL, used for links in official e-mails
	BaseURL string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string
	LocalStorageURL  string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	// Reverse geocoding
	GeocoderBaseURL   string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration
	GeocoderCacheTTL  time.Duration

	// Geocode cache; disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Photo preparation and upload
	MediaMaxBytes          int
	MediaMaxDimension      int
	MediaUploadConcurrency int

	// Report submission
	SubmissionTimeout    time.Duration // post-save work, detached from the request
	SubmissionRateLimit  int           // reports per reporter per window
	SubmissionRateWindow time.Duration

	// SMTP Configuration; official e-mails are disabled when SMTPHost is empty
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration
	NotifyRetryDelay   time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint is unprotected
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),

		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		GeocoderBaseURL:   getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", ""),
		GeocoderTimeout:   getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
		GeocoderCacheTTL:  getEnvDuration("GEOCODER_CACHE_TTL", 30*24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MediaMaxBytes:          getEnvInt("MEDIA_MAX_BYTES", 1024*1024),
		MediaMaxDimension:      getEnvInt("MEDIA_MAX_DIMENSION", 1920),
		MediaUploadConcurrency: getEnvInt("MEDIA_UPLOAD_CONCURRENCY", 4),

		SubmissionTimeout:    getEnvDuration("SUBMISSION_TIMEOUT", 2*time.Minute),
		SubmissionRateLimit:  getEnvInt("SUBMISSION_RATE_LIMIT", 20),
		SubmissionRateWindow: getEnvDuration("SUBMISSION_RATE_WINDOW", time.Hour),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@pinreport.local"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "PinReport"),

		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 2*time.Minute),
		NotifyRetryDelay:   getEnvDuration("NOTIFY_RETRY_DELAY", 30*time.Second),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageProvider {
	case "local":
	case "r2":
		required := map[string]string{
			"R2_ACCOUNT_ID":        c.R2AccountID,
			"R2_ACCESS_KEY_ID":     c.R2AccessKeyID,
			"R2_SECRET_ACCESS_KEY": c.R2SecretAccessKey,
			"R2_BUCKET_NAME":       c.R2BucketName,
		}
		for _, name := range []string{"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME"} {
			if required[name] == "" {
				return fmt.Errorf("%s is required when STORAGE_PROVIDER is 'r2'", name)
			}
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", c.StorageProvider)
	}

	// Nominatim's usage policy requires an identifying User-Agent.
	if c.GeocoderUserAgent == "" {
		return fmt.Errorf("GEOCODER_USER_AGENT is required")
	}

	if c.MediaMaxBytes < 64*1024 {
		return fmt.Errorf("MEDIA_MAX_BYTES must be at least 65536, got %d", c.MediaMaxBytes)
	}
	if c.MediaMaxDimension < 320 {
		return fmt.Errorf("MEDIA_MAX_DIMENSION must be at least 320, got %d", c.MediaMaxDimension)
	}
	if c.MediaUploadConcurrency < 1 || c.MediaUploadConcurrency > 16 {
		return fmt.Errorf("MEDIA_UPLOAD_CONCURRENCY must be between 1 and 16, got %d", c.MediaUploadConcurrency)
	}
	if c.SubmissionRateLimit < 1 {
		return fmt.Errorf("SUBMISSION_RATE_LIMIT must be positive, got %d", c.SubmissionRateLimit)
	}
	return nil
}

// IsSecure reports whether the server runs behind HTTPS.
func (c *Config) IsSecure() bool {
	return c.Env != "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
