package cliparse

import (
	"os"
	"testing"
	"time"
)

func TestParseFlags_EnvVars(t *testing.T) {
	os.Setenv("DATABASE_URL", "file:test.db")
	os.Setenv("CHANNEL_REF", "chan-1")
	os.Setenv("RECONCILE_INTERVAL", "90s")
	defer os.Clearenv()

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DatabaseURL != "file:test.db" {
		t.Errorf("expected database URL from env, got %q", cfg.DatabaseURL)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("expected sqlite default, got %q", cfg.DatabaseType)
	}
	if cfg.ReconcileInterval != 90*time.Second {
		t.Errorf("expected 90s reconcile interval, got %v", cfg.ReconcileInterval)
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://env")
	os.Setenv("CHANNEL_REF", "chan-env")
	defer os.Clearenv()

	cfg, err := ParseFlags([]string{"-d", "file:cli.db", "-channel", "chan-cli"})
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.DatabaseURL != "file:cli.db" {
		t.Errorf("CLI should override env: got %q", cfg.DatabaseURL)
	}
	if cfg.ChannelRef != "chan-cli" {
		t.Errorf("CLI should override env: got %q", cfg.ChannelRef)
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := ParseFlags([]string{"-d", "file:test.db", "-channel", "chan-1"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.MaxIterations != 5 {
		t.Errorf("expected iteration cap 5, got %d", cfg.MaxIterations)
	}
	if cfg.RepairWorkers != 4 {
		t.Errorf("expected 4 repair workers, got %d", cfg.RepairWorkers)
	}
	if cfg.MirrorRate != 5.0 || cfg.MirrorBurst != 5 {
		t.Errorf("unexpected mirror limits: rate=%v burst=%d", cfg.MirrorRate, cfg.MirrorBurst)
	}
	if cfg.CacheStaleAfter != 2*time.Minute {
		t.Errorf("expected 2m staleness threshold, got %v", cfg.CacheStaleAfter)
	}
}

func TestParseFlags_MissingDatabaseURL(t *testing.T) {
	os.Clearenv()

	if _, err := ParseFlags([]string{"-channel", "chan-1"}); err == nil {
		t.Fatal("expected error for missing database URL")
	}
}

func TestParseFlags_BadDatabaseType(t *testing.T) {
	os.Clearenv()

	_, err := ParseFlags([]string{"-d", "x", "-channel", "c", "-t", "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}
