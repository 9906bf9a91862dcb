package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LLM     LLMConfig
	Pricing PricingConfig
	Grading GradingConfig
	Worker  WorkerConfig
}

// LLMConfig configures the external grading provider.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	OverallTimeout time.Duration
}

// PricingConfig holds per-token USD prices and the monthly cost alert threshold.
// Prices are kept as decimal strings so cost math never round-trips through floats.
type PricingConfig struct {
	InputPricePerToken  string
	OutputPricePerToken string
	AlertThresholdUSD   string
}

// GradingConfig bounds submission intake and feedback validation.
type GradingConfig struct {
	AnswerMinLen               int
	AnswerMaxLen               int
	MaxAttempts                int
	MinDetailedFeedbackLen     int
	EstimatedCompletionSeconds int
}

// WorkerConfig tunes the out-of-band grading worker.
type WorkerConfig struct {
	BatchSize         int
	Concurrency       int
	PollInterval      time.Duration
	JobTimeout        time.Duration
	RecoveryThreshold time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "mentora"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "mentora"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       getenvInt("REDIS_DB", 0),

		LLM: LLMConfig{
			BaseURL:        getenv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         strings.TrimSpace(getenv("LLM_API_KEY", "")),
			Model:          getenv("LLM_MODEL", "gpt-4o-mini"),
			RequestTimeout: getenvDuration("LLM_REQUEST_TIMEOUT", 20*time.Second),
			MaxAttempts:    getenvInt("LLM_MAX_ATTEMPTS", 3),
			BackoffBase:    getenvDuration("LLM_BACKOFF_BASE", 500*time.Millisecond),
			OverallTimeout: getenvDuration("LLM_OVERALL_TIMEOUT", time.Minute),
		},
		Pricing: PricingConfig{
			InputPricePerToken:  getenv("PRICE_INPUT_PER_TOKEN", "0.000005"),
			OutputPricePerToken: getenv("PRICE_OUTPUT_PER_TOKEN", "0.000015"),
			AlertThresholdUSD:   getenv("COST_ALERT_THRESHOLD_USD", "5.00"),
		},
		Grading: GradingConfig{
			AnswerMinLen:               getenvInt("ANSWER_MIN_LEN", 20),
			AnswerMaxLen:               getenvInt("ANSWER_MAX_LEN", 5000),
			MaxAttempts:                getenvInt("SUBMISSION_MAX_ATTEMPTS", 3),
			MinDetailedFeedbackLen:     getenvInt("MIN_DETAILED_FEEDBACK_LEN", 50),
			EstimatedCompletionSeconds: getenvInt("ESTIMATED_COMPLETION_SECONDS", 30),
		},
		Worker: WorkerConfig{
			BatchSize:         getenvInt("WORKER_BATCH_SIZE", 20),
			Concurrency:       getenvInt("WORKER_CONCURRENCY", 4),
			PollInterval:      getenvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			JobTimeout:        getenvDuration("WORKER_JOB_TIMEOUT", 2*time.Minute),
			RecoveryThreshold: getenvDuration("WORKER_RECOVERY_THRESHOLD", 10*time.Minute),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
