package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chatiq/chatiq/internal/domain"
	"github.com/chatiq/chatiq/internal/observability"
)

// HTTPSink forwards feedback batches to the training/reporting endpoint
// as a JSON array.
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSink(endpoint string) *HTTPSink {
	return &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type feedbackJSON struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *HTTPSink) Export(ctx context.Context, records []*domain.FeedbackRecord) error {
	payload := make([]feedbackJSON, 0, len(records))
	for _, r := range records {
		payload = append(payload, feedbackJSON{
			UserID:    string(r.UserID),
			SessionID: string(r.SessionID),
			MessageID: string(r.MessageID),
			Kind:      string(r.Kind),
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode feedback batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("export feedback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("export feedback: unexpected status %s", resp.Status)
	}
	return nil
}

// LogSink is the stand-in used when no export endpoint is configured: it
// only logs the batch size.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Export(ctx context.Context, records []*domain.FeedbackRecord) error {
	observability.LoggerFromContext(ctx).Info("feedback export (no endpoint configured)",
		"count", len(records))
	return nil
}
