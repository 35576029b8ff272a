package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string

	TokenSecret string
	TokenTTL    time.Duration

	TemplatesPath string
	LogLevel      string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SpreadCacheTTL time.Duration

	EventsBroker string
	KafkaBrokers []string
	KafkaTopic   string
	NATSURL      string
	NATSSubject  string
}

// ParseFlags reads flags, falling back to environment variables (optionally
// loaded from an env file) and then to defaults.
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var envFile, kafkaBrokers, tokenTTL, spreadTTL string

	fs := flag.NewFlagSet("consensus-engine", flag.ContinueOnError)

	fs.StringVar(&envFile, "env-file", ".env", "File of KEY=value pairs loaded into the environment if present")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.TokenSecret, "token-secret", "", "Token signing secret (prefer env)")
	fs.StringVar(&tokenTTL, "token-ttl", "", "Token lifetime, e.g. 24h")

	fs.StringVar(&cfg.TemplatesPath, "templates", "", "YAML file of extra choice templates")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Optional infrastructure
	fs.StringVar(&cfg.RedisAddr, "redis", "", "Redis address for the spread cache (empty disables)")
	fs.StringVar(&spreadTTL, "spread-ttl", "", "Spread cache TTL")
	fs.StringVar(&cfg.EventsBroker, "events", "", "Event broker (none, kafka or nats)")
	fs.StringVar(&kafkaBrokers, "kafka-brokers", "", "Comma-separated Kafka brokers")
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", "", "Kafka topic")
	fs.StringVar(&cfg.NATSURL, "nats-url", "", "NATS server URL")
	fs.StringVar(&cfg.NATSSubject, "nats-subject", "", "NATS subject prefix")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// A missing env file is normal outside development.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3318 // default
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	cfg.DatabaseType = firstNonEmpty(cfg.DatabaseType, os.Getenv("DATABASE_TYPE"), "sqlite")

	// Secrets - MUST be provided
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	}
	if cfg.TokenSecret == "" {
		return Config{}, errors.New("TOKEN_SECRET required")
	}

	var err error
	if cfg.TokenTTL, err = parseDuration("TOKEN_TTL", firstNonEmpty(tokenTTL, os.Getenv("TOKEN_TTL"), "24h")); err != nil {
		return Config{}, err
	}

	cfg.TemplatesPath = firstNonEmpty(cfg.TemplatesPath, os.Getenv("TEMPLATES_PATH"))
	cfg.LogLevel = strings.ToLower(firstNonEmpty(cfg.LogLevel, os.Getenv("LOG_LEVEL"), "info"))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	cfg.RedisAddr = firstNonEmpty(cfg.RedisAddr, os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if cfg.RedisDB, err = strconv.Atoi(dbStr); err != nil {
			return Config{}, errors.New("invalid REDIS_DB env variable")
		}
	}
	if cfg.SpreadCacheTTL, err = parseDuration("SPREAD_CACHE_TTL", firstNonEmpty(spreadTTL, os.Getenv("SPREAD_CACHE_TTL"), "30s")); err != nil {
		return Config{}, err
	}

	cfg.EventsBroker = strings.ToLower(firstNonEmpty(cfg.EventsBroker, os.Getenv("EVENTS_BROKER"), "none"))
	cfg.KafkaTopic = firstNonEmpty(cfg.KafkaTopic, os.Getenv("KAFKA_TOPIC"), "consensus-events")
	cfg.NATSURL = firstNonEmpty(cfg.NATSURL, os.Getenv("NATS_URL"))
	cfg.NATSSubject = firstNonEmpty(cfg.NATSSubject, os.Getenv("NATS_SUBJECT"), "consensus")
	for _, broker := range strings.Split(firstNonEmpty(kafkaBrokers, os.Getenv("KAFKA_BROKERS")), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
		}
	}

	switch cfg.EventsBroker {
	case "none":
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, errors.New("KAFKA_BROKERS required when EVENTS_BROKER is kafka")
		}
	case "nats":
		if cfg.NATSURL == "" {
			return Config{}, errors.New("NATS_URL required when EVENTS_BROKER is nats")
		}
	default:
		return Config{}, fmt.Errorf("unsupported events broker %q", cfg.EventsBroker)
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return d, nil
}
