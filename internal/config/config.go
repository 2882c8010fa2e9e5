package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	RedisURL        string
	KafkaBrokers    string
	NatsURL         string
	SuiRPCURL       string
	JaegerEndpoint  string
	FrontendBaseURL string
	Port            string

	LedgerTimeout  time.Duration
	LedgerCacheTTL time.Duration
	FinalityDelay  time.Duration

	WebhookSecret  string
	WebhookTimeout time.Duration
	NotifyBackend  string
	NotifyWorkers  int
	NotifyBuffer   int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		NatsURL:         os.Getenv("NATS_URL"),
		SuiRPCURL:       getEnv("SUI_RPC_URL", "https://fullnode.testnet.sui.io:443"),
		JaegerEndpoint:  os.Getenv("JAEGER_ENDPOINT"),
		FrontendBaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:5173"),
		Port:            getEnv("PORT", "4000"),

		LedgerTimeout:  getDuration("LEDGER_TIMEOUT", 5*time.Second),
		LedgerCacheTTL: getDuration("LEDGER_CACHE_TTL", 10*time.Minute),
		FinalityDelay:  getDuration("FINALITY_DELAY", 3*time.Second),

		WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout: getDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		NotifyBackend:  getEnv("NOTIFY_BACKEND", "memory"),
		NotifyWorkers:  getInt("NOTIFY_WORKERS", 4),
		NotifyBuffer:   getInt("NOTIFY_BUFFER", 256),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
