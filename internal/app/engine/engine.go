package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatiq/chatiq/internal/domain"
	"github.com/chatiq/chatiq/internal/observability"
)

// State of the session state machine.
type State string

const (
	StateLoggedOut     State = "logged_out"
	StateUnsaved       State = "unsaved"
	StateTransitioning State = "transitioning"
	StateActive        State = "active"
)

var (
	ErrNotSignedIn     = errors.New("not signed in")
	ErrAlreadySignedIn = errors.New("already signed in")
	ErrEmptyMessage    = errors.New("nothing to send")
	ErrQueryRejected   = errors.New("message rejected by content policy")
)

const titleLimit = 35

// Store is the remote store surface the engine depends on. The firestore
// and memory adapters both implement all three ports with one type.
type Store interface {
	domain.SessionStore
	domain.MessageStore
	domain.SubscriptionStore
}

// Engine owns the session state machine, the live subscriptions and the
// in-memory conversation caches. All mutable state sits behind one mutex;
// remote calls are made outside of it.
type Engine struct {
	store      Store
	completion domain.CompletionClient
	ui         domain.UIListener
	local      domain.LocalState
	vulgarity  domain.QueryPolicy
	now        func() time.Time

	mu             sync.Mutex
	state          State
	epoch          uint64 // bumped on every transition that abandons in-flight work
	userID         domain.UserID
	activeID       domain.SessionID
	creating       *creation
	cancelSessions domain.CancelFunc
	cancelMessages domain.CancelFunc
	lastSessions   []*domain.Session
	window         *Window
	notes          *Notes
}

// creation is the single in-flight session creation of one unsaved-chat
// lifetime. Concurrent sends wait on done instead of creating again.
type creation struct {
	done chan struct{}
	id   domain.SessionID
	err  error
}

func New(
	store Store,
	completion domain.CompletionClient,
	ui domain.UIListener,
	local domain.LocalState,
	vulgarity domain.QueryPolicy,
) *Engine {
	return &Engine{
		store:      store,
		completion: completion,
		ui:         ui,
		local:      local,
		vulgarity:  vulgarity,
		now:        time.Now,
		state:      StateLoggedOut,
		window:     NewWindow(),
		notes:      NewNotes(),
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) ActiveSession() domain.SessionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID
}

// User returns the signed-in user, or "" when logged out.
func (e *Engine) User() domain.UserID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// Notes exposes the long-term note cache so the feedback recorder can
// write corrections into it.
func (e *Engine) Notes() *Notes {
	return e.notes
}

// SignIn moves LoggedOut -> Unsaved, opens the session-list subscription
// and restores the previously active session if it still exists remotely.
func (e *Engine) SignIn(ctx context.Context, userID domain.UserID) error {
	e.mu.Lock()
	if e.state != StateLoggedOut {
		e.mu.Unlock()
		return ErrAlreadySignedIn
	}
	e.epoch++
	e.userID = userID
	e.state = StateUnsaved
	e.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With("user_id", userID)
	log.Info("signed in")

	e.openSessionSubscription(userID)

	restored, ok := e.local.LoadActiveSession(userID)
	if !ok {
		return nil
	}
	if _, err := e.store.GetSession(ctx, restored); err != nil {
		log.Warn("stored session is gone, starting unsaved",
			"session_id", restored, "error", err)
		if cerr := e.local.ClearActiveSession(userID); cerr != nil {
			log.Warn("could not clear stored session", "error", cerr)
		}
		return nil
	}
	return e.SelectSession(ctx, restored)
}

// SignOut cancels every subscription, clears the caches and the stored
// session id, and returns to LoggedOut.
func (e *Engine) SignOut() {
	e.mu.Lock()
	if e.state == StateLoggedOut {
		e.mu.Unlock()
		return
	}
	e.epoch++
	userID := e.userID
	cancelMsgs := e.cancelMessages
	cancelSess := e.cancelSessions
	e.cancelMessages = nil
	e.cancelSessions = nil
	e.state = StateLoggedOut
	e.userID = ""
	e.activeID = ""
	e.lastSessions = nil
	e.window.Reset()
	e.notes.Reset()
	e.mu.Unlock()

	if cancelMsgs != nil {
		cancelMsgs()
	}
	if cancelSess != nil {
		cancelSess()
	}
	if err := e.local.ClearActiveSession(userID); err != nil {
		observability.Logger().Warn("could not clear stored session", "error", err)
	}

	e.ui.OnSessionListChanged(nil, "")
	e.ui.OnMessageListChanged(nil)
	observability.Logger().Info("signed out", "user_id", userID)
}

// StartNewChat abandons the active session and returns to Unsaved.
// Nothing is persisted until the first send.
func (e *Engine) StartNewChat() {
	e.mu.Lock()
	if e.state == StateLoggedOut {
		e.mu.Unlock()
		return
	}
	e.epoch++
	e.state = StateUnsaved
	e.activeID = ""
	userID := e.userID
	sessions := e.lastSessions
	e.window.Reset()
	cancel := e.cancelMessages
	e.cancelMessages = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := e.local.ClearActiveSession(userID); err != nil {
		observability.Logger().Warn("could not clear stored session", "error", err)
	}

	e.ui.OnSessionListChanged(sessions, "")
	e.ui.OnMessageListChanged(nil)
}

// SelectSession switches the active session. The old message subscription
// is cancelled before the new one opens; the window is rebuilt from the
// new session's snapshots.
func (e *Engine) SelectSession(ctx context.Context, id domain.SessionID) error {
	if id == "" {
		return errors.New("session id is required")
	}

	e.mu.Lock()
	if e.state == StateLoggedOut {
		e.mu.Unlock()
		return ErrNotSignedIn
	}
	if e.state == StateActive && e.activeID == id {
		e.mu.Unlock()
		return nil
	}
	e.epoch++
	e.state = StateActive
	e.activeID = id
	userID := e.userID
	sessions := e.lastSessions
	e.window.Reset()
	e.mu.Unlock()

	observability.LoggerFromContext(ctx).Info("session selected", "session_id", id)

	e.switchMessageSubscription(id)

	if err := e.local.SaveActiveSession(userID, id); err != nil {
		observability.Logger().Warn("could not persist active session", "error", err)
	}
	e.ui.OnSessionListChanged(sessions, id)
	return nil
}

// DeleteSession removes a session and its messages from the remote store.
// Deleting the active session falls back to a fresh unsaved chat.
func (e *Engine) DeleteSession(ctx context.Context, id domain.SessionID) error {
	e.mu.Lock()
	if e.state == StateLoggedOut {
		e.mu.Unlock()
		return ErrNotSignedIn
	}
	wasActive := e.activeID == id
	e.mu.Unlock()

	if err := e.store.DeleteSession(ctx, id); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to delete session",
			"session_id", id, "error", err)
		e.ui.OnError("Failed to delete chat.")
		return err
	}
	if wasActive {
		e.StartNewChat()
	}
	return nil
}

type SendInput struct {
	Text  string
	Image *domain.ImageAttachment
}

type SendOutput struct {
	SessionID    domain.SessionID
	ImageMessage *domain.Message
	UserMessage  *domain.Message
	BotMessage   *domain.Message
}

// Send persists the user turn, calls the completion service with the
// bounded context window, and persists the bot reply through the same
// path. The reply is always persisted to the session the send started
// in, even if the user has switched away; in that case the result only
// lands in that session's history and never touches the active view.
func (e *Engine) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Image == nil {
		return nil, ErrEmptyMessage
	}

	e.mu.Lock()
	if e.state == StateLoggedOut {
		e.mu.Unlock()
		e.ui.OnError("Please sign in to send messages.")
		return nil, ErrNotSignedIn
	}
	userID := e.userID
	e.mu.Unlock()

	if e.vulgarity != nil && e.vulgarity.Matches(text) {
		e.ui.OnError("Your message was blocked by the content policy.")
		return nil, ErrQueryRejected
	}

	log := observability.LoggerFromContext(ctx).With("user_id", userID)

	sessionID, err := e.ensureSession(ctx, deriveTitle(text, in.Image))
	if err != nil {
		log.Error("could not ensure a persisted session", "error", err)
		e.ui.OnError("Could not start a new chat.")
		return nil, err
	}
	// Thread the session id through the context so the completion client
	// and store adapters log under it too.
	ctx = observability.WithSessionID(ctx, string(sessionID))
	log = observability.LoggerFromContext(ctx).With("user_id", userID)

	out := &SendOutput{SessionID: sessionID}

	// The image message goes first so multi-part turns have a
	// deterministic log order. A failed image write is reported and the
	// turn continues; there is no rollback or retry.
	if in.Image != nil {
		imgMsg := e.newMessage(sessionID, domain.SenderUser, domain.KindImage,
			base64.StdEncoding.EncodeToString(in.Image.Data), in.Image.MimeType)
		if err := e.appendMessage(ctx, imgMsg); err != nil {
			log.Error("failed to persist image message", "error", err)
			e.ui.OnError("Could not save your image.")
		} else {
			out.ImageMessage = imgMsg
		}
	}

	if text != "" {
		userMsg := e.newMessage(sessionID, domain.SenderUser, domain.KindText, text, "")
		if err := e.appendMessage(ctx, userMsg); err != nil {
			log.Error("failed to persist user message", "error", err)
			e.ui.OnError("Could not send your message. Please try again.")
			return nil, err
		}
		out.UserMessage = userMsg
	}

	req := e.buildCompletionRequest(sessionID, text, in.Image)
	replyText := e.completion.Complete(ctx, req)

	// The reply (or its fallback text) is stored like any other message,
	// so the session history doubles as the error log.
	botMsg := e.newMessage(sessionID, domain.SenderBot, domain.KindText, replyText, "")
	if err := e.appendMessage(ctx, botMsg); err != nil {
		log.Error("failed to persist bot message", "error", err)
		e.ui.OnError("Could not record the reply.")
		return nil, err
	}
	out.BotMessage = botMsg

	e.mu.Lock()
	stillActive := e.state == StateActive && e.activeID == sessionID
	e.mu.Unlock()
	if stillActive {
		e.ui.OnTurnCompleted(botMsg)
	} else {
		log.Debug("turn finished for a session that is no longer active")
	}

	log.Info("turn completed")
	return out, nil
}

// ensureSession returns the id of the persisted session the send belongs
// to, creating one when the chat is still unsaved. At most one creation
// is in flight per unsaved-chat lifetime; concurrent sends wait for it.
func (e *Engine) ensureSession(ctx context.Context, title string) (domain.SessionID, error) {
	e.mu.Lock()
	switch e.state {
	case StateActive:
		id := e.activeID
		e.mu.Unlock()
		return id, nil

	case StateTransitioning:
		c := e.creating
		e.mu.Unlock()
		select {
		case <-c.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return c.id, c.err

	case StateUnsaved:
		return e.createSessionLocked(ctx, title)

	default:
		e.mu.Unlock()
		return "", ErrNotSignedIn
	}
}

// createSessionLocked runs the Unsaved -> Transitioning -> Active
// transition. Called with e.mu held; unlocks for the remote write.
func (e *Engine) createSessionLocked(ctx context.Context, title string) (domain.SessionID, error) {
	c := &creation{done: make(chan struct{})}
	e.creating = c
	e.state = StateTransitioning
	startEpoch := e.epoch
	userID := e.userID
	e.mu.Unlock()

	now := e.now()
	session := &domain.Session{
		ID:           domain.SessionID(uuid.NewString()),
		UserID:       userID,
		Title:        title,
		CreatedAt:    now,
		LastActivity: now,
	}
	err := e.store.CreateSession(ctx, session)

	e.mu.Lock()
	if e.creating == c {
		e.creating = nil
	}
	adopted := false
	if err != nil {
		c.err = err
		if e.epoch == startEpoch && e.state == StateTransitioning {
			e.state = StateUnsaved
		}
	} else {
		c.id = session.ID
		// Adopt the new session only if the user hasn't moved on while
		// the creation was in flight.
		if e.epoch == startEpoch && e.state == StateTransitioning {
			e.state = StateActive
			e.activeID = session.ID
			adopted = true
		}
	}
	e.mu.Unlock()
	close(c.done)

	if err != nil {
		return "", err
	}

	if adopted {
		e.switchMessageSubscription(session.ID)
		if serr := e.local.SaveActiveSession(userID, session.ID); serr != nil {
			observability.Logger().Warn("could not persist active session", "error", serr)
		}
	}
	return session.ID, nil
}

// appendMessage writes the message and refreshes the session's activity.
// An activity-refresh failure is logged but does not fail the append.
func (e *Engine) appendMessage(ctx context.Context, msg *domain.Message) error {
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return err
	}
	if err := e.store.TouchSession(ctx, msg.SessionID, msg.CreatedAt); err != nil {
		observability.LoggerFromContext(ctx).Warn("could not refresh session activity",
			"session_id", msg.SessionID, "error", err)
	}
	return nil
}

func (e *Engine) newMessage(
	sessionID domain.SessionID,
	sender domain.Sender,
	kind domain.MessageKind,
	content, mimeType string,
) *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		SessionID: sessionID,
		Sender:    sender,
		Kind:      kind,
		Content:   content,
		MimeType:  mimeType,
		CreatedAt: e.now(),
	}
}

// buildCompletionRequest assembles the context window for one turn. The
// snapshot carrying the just-persisted user turn may not have landed yet,
// so the current input is appended when the window doesn't end with it.
func (e *Engine) buildCompletionRequest(
	sessionID domain.SessionID,
	text string,
	image *domain.ImageAttachment,
) domain.CompletionRequest {
	query := text
	if query == "" {
		query = "(Analyze the image)"
	}

	turns := e.window.Turns()
	notes := e.notes.BySession(sessionID)

	var current []domain.Turn
	if image != nil {
		current = append(current, domain.Turn{Sender: domain.SenderUser, Text: imagePlaceholder})
	}
	if text != "" {
		current = append(current, domain.Turn{Sender: domain.SenderUser, Text: text})
	}
	if !endsWith(turns, current) {
		turns = append(turns, current...)
		if len(turns) > WindowSize {
			turns = turns[len(turns)-WindowSize:]
		}
	}

	return domain.CompletionRequest{
		Turns: turns,
		Query: query,
		Image: image,
		Notes: notes,
	}
}

func endsWith(turns, suffix []domain.Turn) bool {
	if len(suffix) == 0 || len(turns) < len(suffix) {
		return false
	}
	offset := len(turns) - len(suffix)
	for i := range suffix {
		if turns[offset+i] != suffix[i] {
			return false
		}
	}
	return true
}

// deriveTitle builds the session title from the first message: leading
// characters of the text, or a placeholder for image-only sends.
func deriveTitle(text string, image *domain.ImageAttachment) string {
	if text == "" && image != nil {
		return "Image chat"
	}
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit]) + "..."
}
