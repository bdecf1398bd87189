package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chatiq/chatiq/internal/domain"
	"github.com/chatiq/chatiq/internal/observability"
)

// Store implements the engine's store ports against Firestore. Sessions
// live in a top-level collection keyed by user_id, messages in a
// subcollection of their session, feedback in its own collection.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given GCP project
// (CHATIQ_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) messageDoc(sessionID domain.SessionID, msgID domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(string(msgID))
}

func (s *Store) feedbackCol() *firestore.CollectionRef {
	return s.client.Collection("feedback")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	UserID       string    `firestore:"user_id"`
	Title        string    `firestore:"title"`
	CreatedAt    time.Time `firestore:"created_at"`
	LastActivity time.Time `firestore:"last_activity"`
}

type messageDoc struct {
	SessionID string    `firestore:"session_id"`
	Sender    string    `firestore:"sender"`
	Kind      string    `firestore:"kind"`
	Content   string    `firestore:"content"`
	MimeType  string    `firestore:"mime_type"`
	CreatedAt time.Time `firestore:"created_at"`
}

type feedbackDoc struct {
	UserID    string    `firestore:"user_id"`
	SessionID string    `firestore:"session_id"`
	MessageID string    `firestore:"message_id"`
	Kind      string    `firestore:"kind"`
	Content   string    `firestore:"content"`
	CreatedAt time.Time `firestore:"created_at"`
}

func (d *sessionDoc) toDomain(id domain.SessionID) *domain.Session {
	return &domain.Session{
		ID:           id,
		UserID:       domain.UserID(d.UserID),
		Title:        d.Title,
		CreatedAt:    d.CreatedAt,
		LastActivity: d.LastActivity,
	}
}

func (d *messageDoc) toDomain(id domain.MessageID) *domain.Message {
	return &domain.Message{
		ID:        id,
		SessionID: domain.SessionID(d.SessionID),
		Sender:    domain.Sender(d.Sender),
		Kind:      domain.MessageKind(d.Kind),
		Content:   d.Content,
		MimeType:  d.MimeType,
		CreatedAt: d.CreatedAt,
	}
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	doc := sessionDoc{
		UserID:       string(session.UserID),
		Title:        session.Title,
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
	}

	if _, err := s.sessionDoc(session.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return doc.toDomain(id), nil
}

func (s *Store) TouchSession(ctx context.Context, id domain.SessionID, at domain.Timestamp) error {
	_, err := s.sessionDoc(id).Update(ctx, []firestore.Update{
		{Path: "last_activity", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore TouchSession: %w", err)
	}
	return nil
}

// DeleteSession removes the session's messages first, then the session
// document itself.
func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	iter := s.messagesCol(id).Documents(ctx)
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("firestore DeleteSession list messages: %w", err)
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			return fmt.Errorf("firestore DeleteSession queue delete: %w", err)
		}
	}
	bw.End()

	if _, err := s.sessionDoc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore DeleteSession: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	doc := messageDoc{
		SessionID: string(msg.SessionID),
		Sender:    string(msg.Sender),
		Kind:      string(msg.Kind),
		Content:   msg.Content,
		MimeType:  msg.MimeType,
		CreatedAt: msg.CreatedAt,
	}

	if _, err := s.messageDoc(msg.SessionID, msg.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// SubscriptionStore implementation
// ─────────────────────────────────────────

// SubscribeSessions watches the user's session list. Every remote change
// delivers a full snapshot ordered by last_activity descending. A stream
// failure logs and stops deliveries, leaving the consumer on its last
// good snapshot.
func (s *Store) SubscribeSessions(userID domain.UserID, onSnapshot func([]*domain.Session)) (domain.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())

	q := s.sessionsCol().
		Where("user_id", "==", string(userID)).
		OrderBy("last_activity", firestore.Desc)
	snaps := q.Snapshots(ctx)

	go func() {
		defer snaps.Stop()
		log := observability.Logger().With("user_id", userID)
		for {
			qs, err := snaps.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				log.Error("session snapshot stream failed", "error", err)
				return
			}

			sessions, err := decodeSessions(qs)
			if err != nil {
				log.Error("decode session snapshot", "error", err)
				continue
			}
			onSnapshot(sessions)
		}
	}()

	return domain.CancelFunc(cancel), nil
}

// SubscribeMessages watches one session's message list, ordered by
// created_at ascending.
func (s *Store) SubscribeMessages(sessionID domain.SessionID, onSnapshot func([]*domain.Message)) (domain.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())

	q := s.messagesCol(sessionID).OrderBy("created_at", firestore.Asc)
	snaps := q.Snapshots(ctx)

	go func() {
		defer snaps.Stop()
		log := observability.Logger().With("session_id", sessionID)
		for {
			qs, err := snaps.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				log.Error("message snapshot stream failed", "error", err)
				return
			}

			msgs, err := decodeMessages(qs)
			if err != nil {
				log.Error("decode message snapshot", "error", err)
				continue
			}
			onSnapshot(msgs)
		}
	}()

	return domain.CancelFunc(cancel), nil
}

func decodeSessions(qs *firestore.QuerySnapshot) ([]*domain.Session, error) {
	var out []*domain.Session
	iter := qs.Documents
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		out = append(out, doc.toDomain(domain.SessionID(snap.Ref.ID)))
	}
	return out, nil
}

func decodeMessages(qs *firestore.QuerySnapshot) ([]*domain.Message, error) {
	var out []*domain.Message
	iter := qs.Documents
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}
		out = append(out, doc.toDomain(domain.MessageID(snap.Ref.ID)))
	}
	return out, nil
}

// ─────────────────────────────────────────
// FeedbackStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendFeedback(ctx context.Context, rec *domain.FeedbackRecord) error {
	doc := feedbackDoc{
		UserID:    string(rec.UserID),
		SessionID: string(rec.SessionID),
		MessageID: string(rec.MessageID),
		Kind:      string(rec.Kind),
		Content:   rec.Content,
		CreatedAt: rec.CreatedAt,
	}

	if _, err := s.feedbackCol().NewDoc().Create(ctx, doc); err != nil {
		return fmt.Errorf("firestore AppendFeedback: %w", err)
	}
	return nil
}

func (s *Store) QueryFeedbackSince(ctx context.Context, since domain.Timestamp) ([]*domain.FeedbackRecord, error) {
	q := s.feedbackCol().
		Where("created_at", ">", since).
		OrderBy("created_at", firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.FeedbackRecord
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore QueryFeedbackSince: %w", err)
		}

		var doc feedbackDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode feedbackDoc: %w", err)
		}

		out = append(out, &domain.FeedbackRecord{
			UserID:    domain.UserID(doc.UserID),
			SessionID: domain.SessionID(doc.SessionID),
			MessageID: domain.MessageID(doc.MessageID),
			Kind:      domain.FeedbackKind(doc.Kind),
			Content:   doc.Content,
			CreatedAt: doc.CreatedAt,
		})
	}
	return out, nil
}
