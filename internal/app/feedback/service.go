package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatiq/chatiq/internal/domain"
	"github.com/chatiq/chatiq/internal/observability"
)

// NoteWriter receives corrections for inaccurate answers. The engine's
// long-term note cache implements it.
type NoteWriter interface {
	Save(sessionID domain.SessionID, key, value string)
}

// Service records user feedback on bot messages. Records are append-only
// and never mutated.
type Service struct {
	store domain.FeedbackStore
	notes NoteWriter
	now   func() time.Time
}

func NewService(store domain.FeedbackStore, notes NoteWriter) *Service {
	return &Service{
		store: store,
		notes: notes,
		now:   time.Now,
	}
}

type RecordInput struct {
	UserID    domain.UserID
	SessionID domain.SessionID
	MessageID domain.MessageID
	Kind      domain.FeedbackKind
	Content   string
}

// Record appends a feedback record. Marking an answer inaccurate also
// writes a long-term note keyed by the message id, so later turns can
// pick the correction up opportunistically.
func (s *Service) Record(ctx context.Context, in RecordInput) error {
	if in.Kind != domain.FeedbackHelpful && in.Kind != domain.FeedbackInaccurate {
		return fmt.Errorf("unknown feedback kind %q", in.Kind)
	}
	if in.MessageID == "" {
		return errors.New("message id is required")
	}

	log := observability.LoggerFromContext(ctx).With(
		"message_id", in.MessageID,
		"kind", in.Kind,
	)

	rec := &domain.FeedbackRecord{
		UserID:    in.UserID,
		SessionID: in.SessionID,
		MessageID: in.MessageID,
		Kind:      in.Kind,
		Content:   in.Content,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendFeedback(ctx, rec); err != nil {
		log.Error("failed to save feedback", "error", err)
		return err
	}

	if in.Kind == domain.FeedbackInaccurate && s.notes != nil {
		s.notes.Save(in.SessionID, "correction-"+string(in.MessageID), in.Content)
	}

	log.Info("feedback recorded")
	return nil
}
