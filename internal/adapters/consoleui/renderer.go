package consoleui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chatiq/chatiq/internal/domain"
)

const welcomeText = "Hi! How can I help you today?"

// Renderer is a minimal terminal rendering of the UI contract: session
// picker and chat log printed to a writer. It keeps no state of its own
// beyond the output stream; every callback carries a full view.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out}
}

func (r *Renderer) OnSessionListChanged(sessions []*domain.Session, activeID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out, "--- chats ---")
	if len(sessions) == 0 {
		fmt.Fprintln(r.out, "  (no chat history)")
		return
	}
	for _, s := range sessions {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(r.out, " %s %s\n", marker, s.Title)
	}
}

func (r *Renderer) OnMessageListChanged(messages []*domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(messages) == 0 {
		fmt.Fprintf(r.out, "bot> %s\n", welcomeText)
		return
	}
	for _, m := range messages {
		content := m.Content
		if m.Kind == domain.KindImage {
			content = "[image]"
		}
		fmt.Fprintf(r.out, "%s> %s\n", m.Sender, content)
	}
}

func (r *Renderer) OnTurnCompleted(botMessage *domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "bot> %s\n", botMessage.Content)
}

func (r *Renderer) OnError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "error: %s\n", message)
}
