package feedback_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatiq/chatiq/internal/adapters/storage/memory"
	"github.com/chatiq/chatiq/internal/app/feedback"
	"github.com/chatiq/chatiq/internal/domain"
)

// fakeSink records every export batch it receives.
type fakeSink struct {
	mu      sync.Mutex
	batches [][]*domain.FeedbackRecord
	err     error
}

func (s *fakeSink) Export(_ context.Context, records []*domain.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *fakeSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func appendFeedback(t *testing.T, store *memory.Store, messageID domain.MessageID, at time.Time) {
	t.Helper()
	err := store.AppendFeedback(context.Background(), &domain.FeedbackRecord{
		UserID:    "test-user",
		SessionID: "sess-1",
		MessageID: messageID,
		Kind:      domain.FeedbackHelpful,
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("AppendFeedback failed: %v", err)
	}
}

func TestExporterSkipsSinkWhenNothingMatches(t *testing.T) {
	store := memory.NewStore()
	sink := &fakeSink{}
	exp := feedback.NewExporter(store, sink, feedback.DefaultLookback)

	if err := exp.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := sink.calls(); got != 0 {
		t.Fatalf("expected the sink untouched for an empty window, got %d calls", got)
	}
}

func TestExporterForwardsRecentFeedback(t *testing.T) {
	store := memory.NewStore()
	sink := &fakeSink{}
	exp := feedback.NewExporter(store, sink, feedback.DefaultLookback)

	now := time.Now()
	appendFeedback(t, store, "msg-old", now.Add(-8*24*time.Hour))
	appendFeedback(t, store, "msg-recent", now.Add(-time.Hour))

	if err := exp.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := sink.calls(); got != 1 {
		t.Fatalf("expected 1 export call, got %d", got)
	}

	batch := sink.batches[0]
	if len(batch) != 1 || batch[0].MessageID != "msg-recent" {
		t.Fatalf("expected only the record inside the lookback window, got %+v", batch)
	}
}

func TestExporterPropagatesSinkError(t *testing.T) {
	store := memory.NewStore()
	sink := &fakeSink{err: errors.New("endpoint down")}
	exp := feedback.NewExporter(store, sink, feedback.DefaultLookback)

	appendFeedback(t, store, "msg-1", time.Now())

	if err := exp.Run(context.Background()); err == nil {
		t.Fatalf("expected the sink error surfaced")
	}
}
