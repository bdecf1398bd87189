package memory

import (
	"context"

	"github.com/chatiq/chatiq/internal/domain"
)

func (s *Store) AppendFeedback(_ context.Context, rec *domain.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.feedback = append(s.feedback, &cp)
	return nil
}

func (s *Store) QueryFeedbackSince(_ context.Context, since domain.Timestamp) ([]*domain.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.FeedbackRecord
	for _, rec := range s.feedback {
		if rec.CreatedAt.After(since) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}
