package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dealroom")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("OUTBOX_INTERVAL", "250ms")
	t.Setenv("HIGH_VALUE_THRESHOLD", "50000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.SessionCookieName != "dealroom_session" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.OutboxInterval != 250*time.Millisecond {
		t.Fatalf("OutboxInterval = %v", cfg.OutboxInterval)
	}
	if cfg.HighValueThreshold.String() != "50000" {
		t.Fatalf("HighValueThreshold = %s", cfg.HighValueThreshold)
	}
	if !cfg.OutboxInlineWorker {
		t.Fatal("inline worker should default to on")
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("JWT_SECRET", "secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without database configuration")
	}
}

func TestLoadBuildsDSNFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "dealroom")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := "host=db user=app password=pw dbname=dealroom port=5432 sslmode=disable TimeZone=UTC"
	if cfg.DatabaseURL != want {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("sk_test_1234567890"); got != "sk_t****7890" {
		t.Fatalf("MaskSecret = %q", got)
	}
	if MaskSecret("") != "❌ EMPTY" || MaskSecret("short") != "****" {
		t.Fatal("short secrets must be fully masked")
	}
}
