package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	setEnvWithCleanup(t, "JWT_SECRET", "secret")
	unsetEnvWithCleanup(t, "OUTBOX_BROKER")
	unsetEnvWithCleanup(t, "BILLING_MODE")
	unsetEnvWithCleanup(t, "OUTBOX_POLL_INTERVAL")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.OutboxBroker != OutboxBrokerKafka {
		t.Fatalf("expected kafka outbox broker by default, got %q", cfg.OutboxBroker)
	}
	if cfg.BillingMode != BillingModeSandbox {
		t.Fatalf("expected sandbox billing by default, got %q", cfg.BillingMode)
	}
	if cfg.OutboxPollInterval != time.Second {
		t.Fatalf("expected 1s poll interval, got %s", cfg.OutboxPollInterval)
	}
	if cfg.Database().DSN() == "" {
		t.Fatalf("expected DSN to be built from defaults")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setEnvWithCleanup(t, "JWT_SECRET", "secret")
	setEnvWithCleanup(t, "MUSICSTORE_DB_PORT", "6543")
	setEnvWithCleanup(t, "OUTBOX_BROKER", "RabbitMQ")
	setEnvWithCleanup(t, "BILLING_CHARGE_TIMEOUT", "750ms")
	setEnvWithCleanup(t, "KAFKA_BROKER_URL", "k1:9092, k2:9092,")
	setEnvWithCleanup(t, "RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DBPort != 6543 {
		t.Fatalf("expected db port 6543, got %d", cfg.DBPort)
	}
	if cfg.OutboxBroker != OutboxBrokerRabbitMQ {
		t.Fatalf("expected rabbitmq outbox broker, got %q", cfg.OutboxBroker)
	}
	if cfg.BillingChargeTimeout != 750*time.Millisecond {
		t.Fatalf("expected 750ms charge timeout, got %s", cfg.BillingChargeTimeout)
	}
	if brokers := cfg.GetKafkaBrokers(); len(brokers) != 2 || brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", brokers)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rate 2.5, got %f", cfg.RateLimitRPS)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	unsetEnvWithCleanup(t, "JWT_SECRET")
	unsetEnvWithCleanup(t, "HTTP_PORT")

	dir := t.TempDir()
	content := "JWT_SECRET=from-file\nHTTP_PORT=9090\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "from-file" || cfg.HTTPPort != "9090" {
		t.Fatalf("expected values from .env, got secret=%q port=%q", cfg.JWTSecret, cfg.HTTPPort)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown broker", map[string]string{"JWT_SECRET": "s", "OUTBOX_BROKER": "nats"}},
		{"http billing without url", map[string]string{"JWT_SECRET": "s", "BILLING_MODE": "http", "BILLING_BASE_URL": ""}},
		{"zero batch", map[string]string{"JWT_SECRET": "s", "OUTBOX_BATCH_SIZE": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				setEnvWithCleanup(t, k, v)
			}
			if _, err := LoadConfig(t.TempDir()); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
