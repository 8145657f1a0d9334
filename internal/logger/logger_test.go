package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestSetup_WritesJSONWithStandardFields(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo).Warn("member resolved",
		slog.String("member_id", "m-456"),
		slog.Int("pages_scanned", 3),
	)

	entry := decodeLine(t, &buf)
	if entry["msg"] != "member resolved" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected time field")
	}
	if entry["member_id"] != "m-456" || entry["pages_scanned"] != float64(3) {
		t.Errorf("attrs = %v", entry)
	}
}

func TestSetup_RedactsSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo).Info("login attempt",
		slog.String("email", "admin@example.com"),
		slog.String("password", "hunter2"),
		slog.String("API_Token", "secret-token"),
	)

	if strings.Contains(buf.String(), "hunter2") || strings.Contains(buf.String(), "secret-token") {
		t.Fatalf("secret leaked: %s", buf.String())
	}
	entry := decodeLine(t, &buf)
	if entry["password"] != redacted || entry["API_Token"] != redacted {
		t.Errorf("sensitive attrs = %v / %v", entry["password"], entry["API_Token"])
	}
	// 秘匿対象でない属性はそのまま
	if entry["email"] != "admin@example.com" {
		t.Errorf("email = %v", entry["email"])
	}
}

func TestSetup_RedactsInsideGroups(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo).Info("upstream request",
		slog.Group("headers", slog.String("Authorization", "Bearer abc")),
	)

	if strings.Contains(buf.String(), "Bearer abc") {
		t.Errorf("authorization leaked: %s", buf.String())
	}
}

func TestSetup_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelWarn)

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Infoログが出力された: %s", buf.String())
	}

	l.Warn("shown")
	if buf.Len() == 0 {
		t.Error("Warnログが出力されていない")
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupDefault(&buf, slog.LevelInfo)
	slog.Info("global test", slog.String("test_key", "test_val"))

	entry := decodeLine(t, &buf)
	if entry["msg"] != "global test" || entry["test_key"] != "test_val" {
		t.Errorf("entry = %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
