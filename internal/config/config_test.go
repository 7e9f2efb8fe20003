package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SUGGESTION_STORE", "")
	t.Setenv("DOCUMENT_CATALOG", "")
	t.Setenv("DOCUMENT_SUFFIXES", "")
	t.Setenv("OUTBOX_INTERVAL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SuggestionStore != "memory" {
		t.Fatalf("expected memory suggestion store, got %s", cfg.SuggestionStore)
	}
	if len(cfg.DocumentCatalog) != len(DefaultDocumentCatalog) {
		t.Fatalf("expected default document catalog, got %v", cfg.DocumentCatalog)
	}
	if cfg.DocumentSuffixes[0] != ".pdf" {
		t.Fatalf("expected .pdf as first default suffix, got %v", cfg.DocumentSuffixes)
	}
	if cfg.OutboxInterval != 2*time.Second {
		t.Fatalf("expected default outbox interval, got %s", cfg.OutboxInterval)
	}
	if cfg.TimestampLayout != "03:04 PM" {
		t.Fatalf("expected default timestamp layout, got %q", cfg.TimestampLayout)
	}
	if cfg.UsesRedisStore() {
		t.Fatalf("expected in-memory store by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SUGGESTION_STORE", " Redis ")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("ID_NODE", "7")
	t.Setenv("DOCUMENT_SUFFIXES", ".pdf, .key ,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,https://console.example.com")
	t.Setenv("OUTBOX_INTERVAL", "5s")
	t.Setenv("EMAIL_PROVIDER", "SES")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if !cfg.UsesRedisStore() {
		t.Fatalf("expected redis store, got %q", cfg.SuggestionStore)
	}
	if cfg.IDNode != 7 {
		t.Fatalf("expected id node 7, got %d", cfg.IDNode)
	}
	if len(cfg.DocumentSuffixes) != 2 || cfg.DocumentSuffixes[1] != ".key" {
		t.Fatalf("unexpected suffixes %v", cfg.DocumentSuffixes)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.OutboxInterval != 5*time.Second {
		t.Fatalf("expected outbox interval override, got %s", cfg.OutboxInterval)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized email provider, got %s", cfg.EmailProvider)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("ID_NODE", "abc")
	t.Setenv("FEED_WAIT_SECONDS", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	t.Setenv("OUTBOX_INTERVAL", "fast")
	cfg := Load()
	if cfg.IDNode != 1 {
		t.Fatalf("expected default id node, got %d", cfg.IDNode)
	}
	if cfg.FeedWaitSeconds != 20 {
		t.Fatalf("expected default wait, got %d", cfg.FeedWaitSeconds)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls disabled")
	}
	if cfg.OutboxInterval != 2*time.Second {
		t.Fatalf("expected default outbox interval, got %s", cfg.OutboxInterval)
	}
}

func TestMutationRateLimit(t *testing.T) {
	t.Setenv("MUTATION_RATE_LIMIT", "2.5")
	t.Setenv("MUTATION_BURST", "")
	cfg := Load()
	if cfg.MutationRateLimit != 2.5 {
		t.Fatalf("expected rate 2.5, got %v", cfg.MutationRateLimit)
	}
	if cfg.MutationBurst != 20 {
		t.Fatalf("expected default burst, got %d", cfg.MutationBurst)
	}
}

func TestOutboxAndDedupeRetention(t *testing.T) {
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "")
	t.Setenv("PROCESSED_RETENTION", "")
	cfg := Load()
	if cfg.OutboxMaxAttempts != 10 {
		t.Fatalf("expected default max attempts, got %d", cfg.OutboxMaxAttempts)
	}
	if cfg.ProcessedRetention != 72*time.Hour {
		t.Fatalf("expected default retention, got %s", cfg.ProcessedRetention)
	}

	t.Setenv("OUTBOX_MAX_ATTEMPTS", "3")
	t.Setenv("PROCESSED_RETENTION", "24h")
	cfg = Load()
	if cfg.OutboxMaxAttempts != 3 || cfg.ProcessedRetention != 24*time.Hour {
		t.Fatalf("unexpected overrides: attempts=%d retention=%s", cfg.OutboxMaxAttempts, cfg.ProcessedRetention)
	}
}
