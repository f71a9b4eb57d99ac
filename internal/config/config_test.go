package config

import (
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("AMEFIS_ENV", "test")
		t.Setenv("AMEFIS_DB_PASSWORD", "secret")

		cfg, err := NewConfig()
		if err != nil {
			t.Fatalf("NewConfig failed: %v", err)
		}

		if cfg.Port != "4001" {
			t.Errorf("Expected default port 4001, got %s", cfg.Port)
		}
		if cfg.SessionTTL != 2*time.Hour {
			t.Errorf("Expected 2h session TTL, got %v", cfg.SessionTTL)
		}
		if cfg.SyncInterval != time.Minute {
			t.Errorf("Expected 1m sync interval, got %v", cfg.SyncInterval)
		}
		if cfg.BackfillCount != 50 {
			t.Errorf("Expected backfill count 50, got %d", cfg.BackfillCount)
		}
		if !cfg.IMAPDefaultTLS || cfg.IMAPDefaultPort != 993 {
			t.Errorf("Expected TLS IMAP on 993 by default, got tls=%v port=%d", cfg.IMAPDefaultTLS, cfg.IMAPDefaultPort)
		}
	})

	t.Run("reads overrides from environment", func(t *testing.T) {
		t.Setenv("AMEFIS_ENV", "test")
		t.Setenv("AMEFIS_DB_PASSWORD", "secret")
		t.Setenv("PORT", "9000")
		t.Setenv("AMEFIS_SESSION_TTL", "30m")
		t.Setenv("AMEFIS_BACKFILL_COUNT", "10")
		t.Setenv("AMEFIS_IMAP_DEFAULT_TLS", "false")

		cfg, err := NewConfig()
		if err != nil {
			t.Fatalf("NewConfig failed: %v", err)
		}

		if cfg.Port != "9000" {
			t.Errorf("Expected port 9000, got %s", cfg.Port)
		}
		if cfg.SessionTTL != 30*time.Minute {
			t.Errorf("Expected 30m session TTL, got %v", cfg.SessionTTL)
		}
		if cfg.BackfillCount != 10 {
			t.Errorf("Expected backfill count 10, got %d", cfg.BackfillCount)
		}
		if cfg.IMAPDefaultTLS {
			t.Error("Expected TLS disabled")
		}
	})

	t.Run("requires a database password", func(t *testing.T) {
		t.Setenv("AMEFIS_ENV", "test")
		t.Setenv("AMEFIS_DB_PASSWORD", "")

		if _, err := NewConfig(); err == nil {
			t.Fatal("Expected error for missing password")
		}
	})

	t.Run("invalid duration falls back to default", func(t *testing.T) {
		t.Setenv("AMEFIS_ENV", "test")
		t.Setenv("AMEFIS_DB_PASSWORD", "secret")
		t.Setenv("AMEFIS_SESSION_TTL", "not-a-duration")

		cfg, err := NewConfig()
		if err != nil {
			t.Fatalf("NewConfig failed: %v", err)
		}
		if cfg.SessionTTL != 2*time.Hour {
			t.Errorf("Expected fallback to 2h, got %v", cfg.SessionTTL)
		}
	})
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.internal",
		DBPort:     "5433",
		DBUsername: "mailcache",
		DBPassword: "pw",
		DBName:     "cache",
		DBSSLMode:  "require",
	}

	expected := "postgres://mailcache:pw@db.internal:5433/cache?sslmode=require"
	if got := cfg.GetDatabaseURL(); got != expected {
		t.Errorf("Expected %s, got %s", expected, got)
	}
}
