// cliparse/cliparse_test.go
package cliparse

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("TOKEN_SECRET", "test-secret")
}

func TestParseFlags_EnvVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("TOKEN_TTL", "2h")

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Errorf("expected token TTL 2h, got %v", cfg.TokenTTL)
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("PORT", "9000")

	cfg, err := ParseFlags([]string{"-p", "8080", "-d", "file:test.db", "-token-secret", "s1"})
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.Port != 8080 {
		t.Errorf("CLI should override env: expected 8080, got %d", cfg.Port)
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 3318 {
		t.Errorf("expected default port 3318, got %d", cfg.Port)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("expected sqlite, got %q", cfg.DatabaseType)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("expected 24h token TTL, got %v", cfg.TokenTTL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info log level, got %q", cfg.LogLevel)
	}
	if cfg.SpreadCacheTTL != 30*time.Second {
		t.Errorf("expected 30s spread TTL, got %v", cfg.SpreadCacheTTL)
	}
	if cfg.EventsBroker != "none" {
		t.Errorf("expected no events broker, got %q", cfg.EventsBroker)
	}
	if cfg.KafkaTopic != "consensus-events" || cfg.NATSSubject != "consensus" {
		t.Errorf("unexpected topic defaults: %q %q", cfg.KafkaTopic, cfg.NATSSubject)
	}
}

func TestParseFlags_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{
			name: "missing database url",
			env:  map[string]string{"TOKEN_SECRET": "s"},
		},
		{
			name: "missing token secret",
			env:  map[string]string{"DATABASE_URL": "file:x.db"},
		},
		{
			name: "bad port",
			env:  map[string]string{"DATABASE_URL": "file:x.db", "TOKEN_SECRET": "s", "PORT": "abc"},
		},
		{
			name: "bad log level",
			env:  map[string]string{"DATABASE_URL": "file:x.db", "TOKEN_SECRET": "s"},
			args: []string{"-log-level", "loud"},
		},
		{
			name: "bad token ttl",
			env:  map[string]string{"DATABASE_URL": "file:x.db", "TOKEN_SECRET": "s", "TOKEN_TTL": "-1h"},
		},
		{
			name: "kafka without brokers",
			env:  map[string]string{"DATABASE_URL": "file:x.db", "TOKEN_SECRET": "s"},
			args: []string{"-events", "kafka"},
		},
		{
			name: "nats without url",
			env:  map[string]string{"DATABASE_URL": "file:x.db", "TOKEN_SECRET": "s", "EVENTS_BROKER": "nats"},
		},
		{
			name: "unknown broker",
			env:  map[string]string{"DATABASE_URL": "file:x.db", "TOKEN_SECRET": "s"},
			args: []string{"-events", "carrier-pigeon"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"DATABASE_URL", "TOKEN_SECRET", "PORT", "TOKEN_TTL", "EVENTS_BROKER"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := ParseFlags(tt.args); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseFlags_KafkaBrokers(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := ParseFlags([]string{"-events", "kafka", "-kafka-brokers", "k1:9092, k2:9092,"})
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "k1:9092" || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
}

func TestParseFlags_EnvFile(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "TOKEN_SECRET", "LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	path := filepath.Join(t.TempDir(), "test.env")
	content := "DATABASE_URL=file:fromenv.db\nTOKEN_SECRET=from-file\nLOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseFlags([]string{"-env-file", path})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DatabaseURL != "file:fromenv.db" {
		t.Errorf("expected database url from env file, got %q", cfg.DatabaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug from env file, got %q", cfg.LogLevel)
	}
}

func TestParseFlags_MissingEnvFileIgnored(t *testing.T) {
	setRequiredEnv(t)

	_, err := ParseFlags([]string{"-env-file", filepath.Join(t.TempDir(), "absent.env")})
	if err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}
