package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"golang.org/x/time/rate"

	"github.com/hitoshi/backoffice/internal/config"
	"github.com/hitoshi/backoffice/internal/middleware"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.UpstreamBaseURL != "https://api.example.com" {
		t.Errorf("UpstreamBaseURL = %q, want %q", cfg.UpstreamBaseURL, "https://api.example.com")
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_LogLevelFromEnv(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "error")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("LOG_LEVEL=error でInfoログが出力された: %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestRateLimiterConfig_ConvertsPerMinute(t *testing.T) {
	cfg := &config.Config{RateLimitGeneral: 60, RateLimitBulk: 6}

	rl := rateLimiterConfig(cfg)

	if rl.GeneralRate != rate.Limit(1) {
		t.Errorf("GeneralRate = %v, want 1", rl.GeneralRate)
	}
	if rl.GeneralBurst != 60 {
		t.Errorf("GeneralBurst = %d, want 60", rl.GeneralBurst)
	}
	if rl.BulkRate != rate.Limit(0.1) {
		t.Errorf("BulkRate = %v, want 0.1", rl.BulkRate)
	}
	if rl.BulkBurst != 6 {
		t.Errorf("BulkBurst = %d, want 6", rl.BulkBurst)
	}
}

func TestRateLimiterConfig_ZeroKeepsDefaults(t *testing.T) {
	rl := rateLimiterConfig(&config.Config{})
	def := middleware.DefaultRateLimiterConfig()

	if rl.GeneralRate != def.GeneralRate || rl.BulkRate != def.BulkRate {
		t.Errorf("rate = %v/%v, want defaults %v/%v", rl.GeneralRate, rl.BulkRate, def.GeneralRate, def.BulkRate)
	}
}

func TestNewUpstreamLimiter(t *testing.T) {
	if l := newUpstreamLimiter(0, 10); l != nil {
		t.Error("0 req/sec で制限なし（nil）になっていない")
	}

	l := newUpstreamLimiter(5, 0)
	if l == nil {
		t.Fatal("expected non-nil limiter")
	}
	if l.Limit() != rate.Limit(5) {
		t.Errorf("Limit = %v, want 5", l.Limit())
	}
	if l.Burst() != 1 {
		t.Errorf("Burst = %d, want 1", l.Burst())
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://user:secret@db:5432/backoffice")
	if bytes.Contains([]byte(got), []byte("secret")) {
		t.Errorf("maskDatabaseURL leaked credentials: %q", got)
	}
	if maskDatabaseURL("short") != "***" {
		t.Errorf("maskDatabaseURL(short) = %q, want ***", maskDatabaseURL("short"))
	}
}
