package memory

import (
	"sort"
	"sync"

	"github.com/chatiq/chatiq/internal/domain"
)

// Store is an in-memory rendition of the remote store. Snapshot fan-out
// is synchronous, which makes subscription semantics deterministic in
// tests and in local mode.
type Store struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*domain.Session
	messages map[domain.SessionID][]*domain.Message
	feedback []*domain.FeedbackRecord

	nextSubID   int
	sessionSubs map[int]*sessionSub
	messageSubs map[int]*messageSub

	createCalls int

	// Failure injection for tests. A hook runs before the write it
	// guards; a non-nil result is returned to the caller and nothing is
	// mutated. The subscribe errors fail every attempt until cleared.
	FailCreate            func(*domain.Session) error
	FailAppend            func(*domain.Message) error
	FailSubscribeSessions error
	FailSubscribeMessages error
}

type sessionSub struct {
	userID domain.UserID
	fn     func([]*domain.Session)
}

type messageSub struct {
	sessionID domain.SessionID
	fn        func([]*domain.Message)
}

func NewStore() *Store {
	return &Store{
		sessions:    make(map[domain.SessionID]*domain.Session),
		messages:    make(map[domain.SessionID][]*domain.Message),
		sessionSubs: make(map[int]*sessionSub),
		messageSubs: make(map[int]*messageSub),
	}
}

// ─────────────────────────────────────────
// SubscriptionStore implementation
// ─────────────────────────────────────────

func (s *Store) SubscribeSessions(userID domain.UserID, onSnapshot func([]*domain.Session)) (domain.CancelFunc, error) {
	s.mu.Lock()
	if err := s.FailSubscribeSessions; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextSubID
	s.nextSubID++
	s.sessionSubs[id] = &sessionSub{userID: userID, fn: onSnapshot}
	s.mu.Unlock()

	onSnapshot(s.sessionSnapshot(userID))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.sessionSubs, id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *Store) SubscribeMessages(sessionID domain.SessionID, onSnapshot func([]*domain.Message)) (domain.CancelFunc, error) {
	s.mu.Lock()
	if err := s.FailSubscribeMessages; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextSubID
	s.nextSubID++
	s.messageSubs[id] = &messageSub{sessionID: sessionID, fn: onSnapshot}
	s.mu.Unlock()

	onSnapshot(s.messageSnapshot(sessionID))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.messageSubs, id)
			s.mu.Unlock()
		})
	}, nil
}

// notifySessions delivers a fresh session snapshot to every subscriber
// of the user. Callbacks run outside the store lock.
func (s *Store) notifySessions(userID domain.UserID) {
	s.mu.Lock()
	var fns []func([]*domain.Session)
	for _, sub := range s.sessionSubs {
		if sub.userID == userID {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	snapshot := s.sessionSnapshot(userID)
	for _, fn := range fns {
		fn(snapshot)
	}
}

func (s *Store) notifyMessages(sessionID domain.SessionID) {
	s.mu.Lock()
	var fns []func([]*domain.Message)
	for _, sub := range s.messageSubs {
		if sub.sessionID == sessionID {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	snapshot := s.messageSnapshot(sessionID)
	for _, fn := range fns {
		fn(snapshot)
	}
}

// sessionSnapshot lists a user's sessions ordered by lastActivity
// descending, like the remote store's session-list query.
func (s *Store) sessionSnapshot(userID domain.UserID) []*domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// messageSnapshot lists a session's messages ordered by timestamp
// ascending, ties kept in arrival order.
func (s *Store) messageSnapshot(sessionID domain.SessionID) []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[sessionID]
	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ─────────────────────────────────────────
// Test support
// ─────────────────────────────────────────

// CreateCalls reports how many session creations the store has seen.
func (s *Store) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

// ActiveMessageSubscriptions reports the number of live message-list
// subscriptions.
func (s *Store) ActiveMessageSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messageSubs)
}

// ActiveSessionSubscriptions reports the number of live session-list
// subscriptions.
func (s *Store) ActiveSessionSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessionSubs)
}

// Sessions returns every stored session for a user, newest activity first.
func (s *Store) Sessions(userID domain.UserID) []*domain.Session {
	return s.sessionSnapshot(userID)
}

// Messages returns a session's messages in log order.
func (s *Store) Messages(sessionID domain.SessionID) []*domain.Message {
	return s.messageSnapshot(sessionID)
}
