package memory

import (
	"context"
	"errors"

	"github.com/chatiq/chatiq/internal/domain"
)

func (s *Store) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	hook := s.FailCreate
	s.mu.Unlock()
	if hook != nil {
		if err := hook(session); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if _, exists := s.sessions[session.ID]; exists {
		s.mu.Unlock()
		return errors.New("session already exists")
	}
	cp := *session
	s.sessions[session.ID] = &cp
	s.createCalls++
	s.mu.Unlock()

	s.notifySessions(session.UserID)
	return nil
}

func (s *Store) GetSession(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) TouchSession(_ context.Context, id domain.SessionID, at domain.Timestamp) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	// lastActivity never goes backwards
	if at.After(sess.LastActivity) {
		sess.LastActivity = at
	}
	userID := sess.UserID
	s.mu.Unlock()

	s.notifySessions(userID)
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	userID := sess.UserID
	delete(s.sessions, id)
	delete(s.messages, id) // cascade
	s.mu.Unlock()

	s.notifySessions(userID)
	s.notifyMessages(id)
	return nil
}
