package engine

import (
	"sync"

	"github.com/chatiq/chatiq/internal/domain"
)

// Notes is the in-memory long-term note cache: corrections keyed by
// (session, key), written when a bot answer is marked inaccurate and read
// opportunistically when building completion context. Best-effort memory,
// cleared on sign-out, never persisted.
type Notes struct {
	mu        sync.Mutex
	bySession map[domain.SessionID][]note
}

type note struct {
	key   string
	value string
}

func NewNotes() *Notes {
	return &Notes{
		bySession: make(map[domain.SessionID][]note),
	}
}

// Save stores a correction, overwriting any previous value for the key.
func (n *Notes) Save(sessionID domain.SessionID, key, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	notes := n.bySession[sessionID]
	for i := range notes {
		if notes[i].key == key {
			notes[i].value = value
			return
		}
	}
	n.bySession[sessionID] = append(notes, note{key: key, value: value})
}

// BySession returns the note values for a session in insertion order.
func (n *Notes) BySession(sessionID domain.SessionID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	notes := n.bySession[sessionID]
	if len(notes) == 0 {
		return nil
	}
	out := make([]string, 0, len(notes))
	for _, nt := range notes {
		out = append(out, nt.value)
	}
	return out
}

func (n *Notes) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bySession = make(map[domain.SessionID][]note)
}
