package engine

import (
	"github.com/chatiq/chatiq/internal/domain"
	"github.com/chatiq/chatiq/internal/observability"
)

// The subscription controller keeps at most one live subscription per
// kind. The previous handle of a kind is always cancelled before a new
// subscription opens; overlapping subscriptions of the same kind would
// let a stale callback overwrite the active view.

// switchMessageSubscription cancels the current message-list subscription
// and opens one for the given session. Must be called without e.mu held.
func (e *Engine) switchMessageSubscription(id domain.SessionID) {
	e.mu.Lock()
	cancel := e.cancelMessages
	e.cancelMessages = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if id == "" {
		return
	}

	handle, err := e.store.SubscribeMessages(id, func(msgs []*domain.Message) {
		e.handleMessageSnapshot(id, msgs)
	})
	if err != nil {
		observability.Logger().Error("message subscription failed",
			"session_id", id, "error", err)
		e.ui.OnError("Could not load this chat.")
		return
	}

	e.mu.Lock()
	if e.state == StateActive && e.activeID == id {
		e.cancelMessages = handle
		e.mu.Unlock()
		return
	}
	// The user switched again while the subscription was opening.
	e.mu.Unlock()
	handle()
}

// openSessionSubscription opens the session-list subscription for a user,
// cancelling any previous one first. Must be called without e.mu held.
func (e *Engine) openSessionSubscription(userID domain.UserID) {
	e.mu.Lock()
	cancel := e.cancelSessions
	e.cancelSessions = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	handle, err := e.store.SubscribeSessions(userID, func(sessions []*domain.Session) {
		e.handleSessionSnapshot(userID, sessions)
	})
	if err != nil {
		observability.Logger().Error("session subscription failed",
			"user_id", userID, "error", err)
		e.ui.OnError("Could not load chat history.")
		return
	}

	e.mu.Lock()
	if e.state != StateLoggedOut && e.userID == userID {
		e.cancelSessions = handle
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	handle()
}

// handleSessionSnapshot re-renders the session picker. The active
// highlight comes from the engine's own activeID, never from the payload.
func (e *Engine) handleSessionSnapshot(userID domain.UserID, sessions []*domain.Session) {
	e.mu.Lock()
	if e.state == StateLoggedOut || e.userID != userID {
		e.mu.Unlock()
		observability.Logger().Debug("dropping session snapshot for inactive user",
			"user_id", userID)
		return
	}
	e.lastSessions = sessions
	active := e.activeID
	e.mu.Unlock()

	e.ui.OnSessionListChanged(sessions, active)
}

// handleMessageSnapshot treats each snapshot as authoritative: it
// replaces the window rather than patching it. Snapshots for a session
// that is no longer active are discarded.
func (e *Engine) handleMessageSnapshot(sessionID domain.SessionID, msgs []*domain.Message) {
	e.mu.Lock()
	if e.activeID != sessionID {
		e.mu.Unlock()
		observability.Logger().Debug("dropping snapshot for inactive session",
			"session_id", sessionID)
		return
	}
	e.window.Rebuild(msgs)
	e.mu.Unlock()

	e.ui.OnMessageListChanged(msgs)
}
