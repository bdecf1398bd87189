package export_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatiq/chatiq/internal/adapters/export"
	"github.com/chatiq/chatiq/internal/domain"
)

func sampleRecords() []*domain.FeedbackRecord {
	return []*domain.FeedbackRecord{
		{
			UserID:    "test-user",
			SessionID: "sess-1",
			MessageID: "msg-1",
			Kind:      domain.FeedbackInaccurate,
			Content:   "wrong answer",
			CreatedAt: time.Now(),
		},
	}
}

func TestHTTPSinkPostsJSONArray(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	sink := export.NewHTTPSink(ts.URL)
	if err := sink.Export(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if gotContentType != "application/json" {
		t.Fatalf("expected a JSON content type, got %q", gotContentType)
	}

	var payload []map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("decoding export payload failed: %v", err)
	}
	if len(payload) != 1 || payload[0]["message_id"] != "msg-1" || payload[0]["kind"] != "inaccurate" {
		t.Fatalf("unexpected payload: %s", gotBody)
	}
}

func TestHTTPSinkRejectsNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	sink := export.NewHTTPSink(ts.URL)
	if err := sink.Export(context.Background(), sampleRecords()); err == nil {
		t.Fatalf("expected an error for a non-2xx response")
	}
}

func TestLogSinkAcceptsAnything(t *testing.T) {
	if err := export.NewLogSink().Export(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
}
