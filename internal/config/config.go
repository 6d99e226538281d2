package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Config struct {
	Env      string
	HTTPPort string
	GRPCPort string

	Postgres     Credentials
	MongoURI     string
	MongoDBName  string
	RedisAddr    string
	RedisPass    string
	KafkaBrokers []string

	PaymentIntentAddr string
	StripeSecretKey   string
	Currency          string

	JWTSecret string

	RequestTimeout time.Duration
	// CheckoutTimeout bounds a whole checkout call, which may span several issuer calls.
	CheckoutTimeout time.Duration
	ShutdownTimeout time.Duration

	IssuerRetries         uint64
	OrderCreateRetries    uint64
	RetryInitialInterval  time.Duration
	ReconcileMaxAttempts  int
	StuckAttemptThreshold time.Duration

	AddressMinLength int
	AddressMaxLength int
}

// Load reads configuration from the environment, after loading a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50057"),
		Postgres: Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              dbPort,
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "ecommerce"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:         getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		PaymentIntentAddr: getEnv("PAYMENT_INTENT_SERVICE_ADDR", "localhost:50057"),
		StripeSecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
		Currency:          strings.ToLower(getEnv("CHECKOUT_CURRENCY", "usd")),
		JWTSecret:         getEnv("JWT_SECRET", ""),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT", "5s", &cfg.RequestTimeout},
		{"CHECKOUT_TIMEOUT", "30s", &cfg.CheckoutTimeout},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
		{"RETRY_INITIAL_INTERVAL", "200ms", &cfg.RetryInitialInterval},
		{"STUCK_ATTEMPT_THRESHOLD", "2m", &cfg.StuckAttemptThreshold},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		def string
		dst *int
	}{
		{"RECONCILE_MAX_ATTEMPTS", "5", &cfg.ReconcileMaxAttempts},
		{"ADDRESS_MIN_LENGTH", "3", &cfg.AddressMinLength},
		{"ADDRESS_MAX_LENGTH", "255", &cfg.AddressMaxLength},
	}
	for _, i := range ints {
		v, err := strconv.Atoi(getEnv(i.key, i.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.dst = v
	}

	if cfg.IssuerRetries, err = strconv.ParseUint(getEnv("ISSUER_RETRIES", "2"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid ISSUER_RETRIES: %w", err)
	}
	if cfg.OrderCreateRetries, err = strconv.ParseUint(getEnv("ORDER_CREATE_RETRIES", "2"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid ORDER_CREATE_RETRIES: %w", err)
	}

	if minimum := cfg.RequestTimeout * time.Duration(cfg.IssuerRetries+1); cfg.CheckoutTimeout < minimum {
		return nil, fmt.Errorf("CHECKOUT_TIMEOUT %s must cover %d issuer calls of REQUEST_TIMEOUT, at least %s",
			cfg.CheckoutTimeout, cfg.IssuerRetries+1, minimum)
	}
	if cfg.AddressMinLength > cfg.AddressMaxLength {
		return nil, fmt.Errorf("ADDRESS_MIN_LENGTH %d exceeds ADDRESS_MAX_LENGTH %d", cfg.AddressMinLength, cfg.AddressMaxLength)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
