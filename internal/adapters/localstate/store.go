package localstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chatiq/chatiq/internal/domain"
	"github.com/chatiq/chatiq/internal/observability"
)

// Store persists the single "last active session id" value across
// restarts as a small JSON file, keyed by user so the value is scoped to
// the signed-in user.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates the store under dir; an empty dir means the user
// config directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve state dir: %w", err)
		}
		dir = filepath.Join(base, "chatiq")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, "last_session.json")}, nil
}

func (s *Store) SaveActiveSession(userID domain.UserID, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	state[string(userID)] = string(id)
	return s.write(state)
}

func (s *Store) LoadActiveSession(userID domain.UserID) (domain.SessionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		observability.Logger().Warn("could not read local state", "error", err)
		return "", false
	}
	id, ok := state[string(userID)]
	if !ok || id == "" {
		return "", false
	}
	return domain.SessionID(id), true
}

func (s *Store) ClearActiveSession(userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := state[string(userID)]; !ok {
		return nil
	}
	delete(state, string(userID))
	return s.write(state)
}

func (s *Store) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read local state: %w", err)
	}

	state := map[string]string{}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse local state: %w", err)
	}
	return state, nil
}

func (s *Store) write(state map[string]string) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local state: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write local state: %w", err)
	}
	return nil
}
