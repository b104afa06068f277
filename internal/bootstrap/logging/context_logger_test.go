package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithAttrsOverridesExistingKey(t *testing.T) {
	ctx := WithAttrs(context.Background(), slog.String("component", "a"), slog.String("pass", "approval"))
	ctx = WithAttrs(ctx, slog.String("component", "b"))

	attrs := Attrs(ctx)
	if len(attrs) != 2 {
		t.Fatalf("Attrs() len = %d, want 2", len(attrs))
	}
	if attrs[0].Key != "component" || attrs[0].Value.String() != "b" {
		t.Fatalf("Attrs()[0] = %v", attrs[0])
	}
}

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithAttrs(WithLogger(context.Background(), logger), slog.String("component", "test"))
	Info(ctx, "hidden")
	Warn(ctx, "shown", slog.Int("record_id", 7))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"record_id":7`) || !strings.Contains(out, `"component":"test"`) {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := New(&buf, "loud", "text"); err == nil {
		t.Fatalf("New() with bad level error = nil")
	}
	if _, err := New(&buf, "info", "xml"); err == nil {
		t.Fatalf("New() with bad format error = nil")
	}
}
