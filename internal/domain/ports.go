package domain

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by stores when a session id does not
// resolve to a persisted session.
var ErrSessionNotFound = errors.New("session not found")

// CancelFunc tears down a live subscription. Safe to call more than once.
type CancelFunc func()

// SessionStore defines session persistence against the remote store.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	// TouchSession refreshes lastActivity. Stores keep it monotonically
	// non-decreasing regardless of the timestamp passed.
	TouchSession(ctx context.Context, id SessionID, at Timestamp) error
	// DeleteSession removes the session and cascades to its messages.
	DeleteSession(ctx context.Context, id SessionID) error
}

// MessageStore defines message persistence against the remote store.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
}

// SubscriptionStore delivers live snapshots from the remote store.
// Every delivery is a full ordered replacement view, never a delta.
// The returned CancelFunc stops deliveries; a snapshot already in flight
// may still land after Cancel returns, so consumers guard each delivery
// by the identity it was subscribed under.
type SubscriptionStore interface {
	// SubscribeSessions watches one user's session list, ordered by
	// lastActivity descending.
	SubscribeSessions(userID UserID, onSnapshot func([]*Session)) (CancelFunc, error)
	// SubscribeMessages watches one session's message list, ordered by
	// timestamp ascending.
	SubscribeMessages(sessionID SessionID, onSnapshot func([]*Message)) (CancelFunc, error)
}

// FeedbackStore persists feedback records and serves the export query.
type FeedbackStore interface {
	AppendFeedback(ctx context.Context, rec *FeedbackRecord) error
	QueryFeedbackSince(ctx context.Context, since Timestamp) ([]*FeedbackRecord, error)
}

// CompletionRequest is the assembled context for one completion call.
// Turns is the ordered window with the current user turn last; Query is
// the raw text of that turn; Notes are best-effort prior corrections.
type CompletionRequest struct {
	Turns []Turn
	Query string
	Image *ImageAttachment
	Notes []string
}

// CompletionClient calls the remote text/vision completion service.
// It never fails across this boundary: every transport or service error
// is converted into a user-safe fallback string, so the returned text is
// always suitable to persist as the bot's message.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) string
}

// QueryPolicy is a pluggable predicate over the raw user query, used for
// the verification keyword set and the vulgarity screen.
type QueryPolicy interface {
	Matches(query string) bool
}

// UIListener is the rendering collaborator. The engine pushes view
// updates; it never reads anything back.
type UIListener interface {
	// OnSessionListChanged re-renders the session picker. The active
	// highlight comes from activeID, never from the snapshot itself.
	OnSessionListChanged(sessions []*Session, activeID SessionID)
	OnMessageListChanged(messages []*Message)
	OnTurnCompleted(botMessage *Message)
	OnError(message string)
}

// LocalState persists the single "last active session id" value across
// reloads, scoped to the signed-in user.
type LocalState interface {
	SaveActiveSession(userID UserID, id SessionID) error
	LoadActiveSession(userID UserID) (SessionID, bool)
	ClearActiveSession(userID UserID) error
}

// FeedbackSink receives exported feedback batches.
type FeedbackSink interface {
	Export(ctx context.Context, records []*FeedbackRecord) error
}
