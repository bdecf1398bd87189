package engine

import (
	"sync"

	"github.com/chatiq/chatiq/internal/domain"
)

// WindowSize bounds the conversation context sent to the completion service.
const WindowSize = 20

const imagePlaceholder = "[Image]"

// Window is the bounded recent-message buffer completion context is built
// from. It is a cache over the active session's snapshot stream, never a
// system of record: every snapshot replaces its contents wholesale, and
// switching sessions resets it.
type Window struct {
	mu      sync.Mutex
	entries []domain.Turn
}

func NewWindow() *Window {
	return &Window{}
}

// Rebuild replaces the window with the trailing WindowSize entries of a
// full ordered snapshot.
func (w *Window) Rebuild(msgs []*domain.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := 0
	if len(msgs) > WindowSize {
		start = len(msgs) - WindowSize
	}

	w.entries = w.entries[:0]
	for _, m := range msgs[start:] {
		w.entries = append(w.entries, toTurn(m))
	}
}

// Turns returns a copy of the current window.
func (w *Window) Turns() []domain.Turn {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]domain.Turn, len(w.entries))
	copy(out, w.entries)
	return out
}

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
}

func toTurn(m *domain.Message) domain.Turn {
	text := m.Content
	if m.Kind == domain.KindImage {
		text = imagePlaceholder
	}
	return domain.Turn{Sender: m.Sender, Text: text}
}
