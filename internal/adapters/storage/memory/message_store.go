package memory

import (
	"context"

	"github.com/chatiq/chatiq/internal/domain"
)

func (s *Store) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	hook := s.FailAppend
	s.mu.Unlock()
	if hook != nil {
		if err := hook(msg); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if _, ok := s.sessions[msg.SessionID]; !ok {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	cp := *msg
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &cp)
	s.mu.Unlock()

	s.notifyMessages(msg.SessionID)
	return nil
}
