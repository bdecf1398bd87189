package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFromContextCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	old := logger
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	defer func() { logger = old }()

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sess-1")
	LoggerFromContext(ctx).Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Fatalf("expected the request id in the log line, got %s", out)
	}
	if !strings.Contains(out, `"session_id":"sess-1"`) {
		t.Fatalf("expected the session id in the log line, got %s", out)
	}
}

func TestLoggerFromContextBareContext(t *testing.T) {
	var buf bytes.Buffer
	old := logger
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	defer func() { logger = old }()

	LoggerFromContext(context.Background()).Info("hello")

	out := buf.String()
	if strings.Contains(out, "request_id") || strings.Contains(out, "session_id") {
		t.Fatalf("expected no id fields on a bare context, got %s", out)
	}
}
