// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the consensus engine API server.

The consensus engine lets groups of users decide between the choices of a
proposal. Each member holds one current vote per proposal; the choice with
strictly the most votes is the consensus, and every change is recorded as a
snapshot so past consensus can be queried by date.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=file:consensus.db TOKEN_SECRET=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..." --token-secret ...

A .env file in the working directory is loaded if present (--env-file).

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite file or PostgreSQL connection string
  - TOKEN_SECRET (--token-secret): HMAC secret for bearer tokens

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - TOKEN_TTL (--token-ttl): Token lifetime (default: 24h)
  - TEMPLATES_PATH (--templates): Extra choice templates in YAML
  - LOG_LEVEL (--log-level): debug, info, warn or error
  - REDIS_ADDR (--redis): Enables the spread cache
  - EVENTS_BROKER (--events): none, kafka or nats

# Architecture

  - engine: Membership, proposal lifecycle, voting and consensus
  - handlers: HTTP request handlers
  - router: Route definitions using Go 1.22+ routing
  - middleware: Request IDs, logging, metrics, auth, CORS, JSON helpers
  - models: Domain, request and response types
  - auth: Bearer token issue and validation
  - db: Dialects, connection and schema
  - templates: Choice templates
  - cache: Redis spread cache
  - events: Kafka and NATS event publishers
  - metrics: Prometheus collectors
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
