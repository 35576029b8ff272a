// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Precedence

CLI flags win over environment variables, which win over defaults. Before
falling back to the environment, the file named by -env-file (default .env)
is loaded with godotenv if it exists. Variables already set are not
overwritten by the file.

# Flags and Environment Variables

	-p              PORT              Server port (default 3318)
	-d              DATABASE_URL      Database URL (required)
	-t              DATABASE_TYPE     sqlite or postgres (default sqlite)
	-token-secret   TOKEN_SECRET      Token signing secret (required)
	-token-ttl      TOKEN_TTL         Token lifetime (default 24h)
	-templates      TEMPLATES_PATH    Extra choice templates (YAML)
	-log-level      LOG_LEVEL         debug, info, warn, error (default info)
	-redis          REDIS_ADDR        Spread cache; empty disables it
	                REDIS_PASSWORD
	                REDIS_DB
	-spread-ttl     SPREAD_CACHE_TTL  Spread cache TTL (default 30s)
	-events         EVENTS_BROKER     none, kafka or nats (default none)
	-kafka-brokers  KAFKA_BROKERS     Comma-separated broker list
	-kafka-topic    KAFKA_TOPIC       Default consensus-events
	-nats-url       NATS_URL
	-nats-subject   NATS_SUBJECT      Subject prefix (default consensus)

# Validation

ParseFlags returns an error if:

  - DATABASE_URL or TOKEN_SECRET is missing
  - PORT, REDIS_DB or a duration does not parse
  - the log level or events broker is unknown
  - the chosen broker lacks its address
*/
package cliparse
