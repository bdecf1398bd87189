package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chatiq/chatiq/internal/app/engine"
	"github.com/chatiq/chatiq/internal/domain"
)

func TestSessionCreationFailureReturnsToUnsaved(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	signIn(t, h)

	h.store.FailCreate = func(*domain.Session) error {
		return errors.New("store down")
	}

	if _, err := h.eng.Send(ctx, engine.SendInput{Text: "hello"}); err == nil {
		t.Fatalf("expected the creation failure surfaced")
	}
	if got := h.eng.State(); got != engine.StateUnsaved {
		t.Fatalf("expected the machine back in unsaved state, got %q", got)
	}
	if got := h.store.CreateCalls(); got != 0 {
		t.Fatalf("expected no persisted session, got %d", got)
	}
	if h.ui.errorCount() == 0 {
		t.Fatalf("expected an error pushed to the UI")
	}

	// The machine stays usable: the next send retries the creation.
	h.store.FailCreate = nil
	out, err := h.eng.Send(ctx, engine.SendInput{Text: "hello again"})
	if err != nil {
		t.Fatalf("Send after recovery failed: %v", err)
	}
	if h.eng.ActiveSession() != out.SessionID {
		t.Fatalf("expected the retried session adopted")
	}
}

func TestConcurrentSendsShareCreationFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	signIn(t, h)

	var entered sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	h.store.FailCreate = func(*domain.Session) error {
		entered.Do(func() { close(started) })
		<-release
		return errors.New("store down")
	}

	errA := make(chan error, 1)
	go func() {
		_, err := h.eng.Send(ctx, engine.SendInput{Text: "first"})
		errA <- err
	}()
	<-started

	errB := make(chan error, 1)
	go func() {
		_, err := h.eng.Send(ctx, engine.SendInput{Text: "second"})
		errB <- err
	}()
	close(release)

	if err := <-errA; err == nil {
		t.Fatalf("expected the first send to fail")
	}
	if err := <-errB; err == nil {
		t.Fatalf("expected the waiting send to share the failure")
	}
	if got := h.store.CreateCalls(); got != 0 {
		t.Fatalf("expected no persisted session, got %d", got)
	}
	if got := h.eng.State(); got != engine.StateUnsaved {
		t.Fatalf("expected unsaved state after both failures, got %q", got)
	}
}

func TestTextWriteFailureAbortsTurnButKeepsImage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	signIn(t, h)

	h.store.FailAppend = func(m *domain.Message) error {
		if m.Kind == domain.KindText && m.Sender == domain.SenderUser {
			return errors.New("write failed")
		}
		return nil
	}

	_, err := h.eng.Send(ctx, engine.SendInput{
		Text:  "what is this?",
		Image: &domain.ImageAttachment{Data: []byte{0x01}, MimeType: "image/png"},
	})
	if err == nil {
		t.Fatalf("expected the text write failure surfaced")
	}

	sessions := h.store.Sessions(testUser)
	if len(sessions) != 1 {
		t.Fatalf("expected the created session kept, got %d", len(sessions))
	}
	msgs := h.store.Messages(sessions[0].ID)
	if len(msgs) != 1 || msgs[0].Kind != domain.KindImage {
		t.Fatalf("expected only the image persisted, got %+v", msgs)
	}
	if got := len(h.mock.Requests()); got != 0 {
		t.Fatalf("expected no completion call after an aborted turn, got %d", got)
	}
	if h.ui.errorCount() == 0 {
		t.Fatalf("expected an error pushed to the UI")
	}
}

func TestImageWriteFailureContinuesTurn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	signIn(t, h)

	h.store.FailAppend = func(m *domain.Message) error {
		if m.Kind == domain.KindImage {
			return errors.New("write failed")
		}
		return nil
	}

	out, err := h.eng.Send(ctx, engine.SendInput{
		Text:  "describe the attachment",
		Image: &domain.ImageAttachment{Data: []byte{0x01}, MimeType: "image/png"},
	})
	if err != nil {
		t.Fatalf("expected the turn to continue past the image failure: %v", err)
	}
	if out.ImageMessage != nil {
		t.Fatalf("expected no image message in the output")
	}
	if out.UserMessage == nil || out.BotMessage == nil {
		t.Fatalf("expected the text and bot messages persisted")
	}

	msgs := h.store.Messages(out.SessionID)
	if len(msgs) != 2 {
		t.Fatalf("expected user + bot messages, got %d", len(msgs))
	}
	if h.ui.errorCount() == 0 {
		t.Fatalf("expected the image failure reported to the UI")
	}
}

func TestBotPersistFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	signIn(t, h)

	h.store.FailAppend = func(m *domain.Message) error {
		if m.Sender == domain.SenderBot {
			return errors.New("write failed")
		}
		return nil
	}

	if _, err := h.eng.Send(ctx, engine.SendInput{Text: "hello"}); err == nil {
		t.Fatalf("expected the bot persist failure surfaced")
	}

	sessions := h.store.Sessions(testUser)
	msgs := h.store.Messages(sessions[0].ID)
	if len(msgs) != 1 || msgs[0].Sender != domain.SenderUser {
		t.Fatalf("expected only the user message persisted, got %+v", msgs)
	}
	if h.ui.turnCount() != 0 {
		t.Fatalf("expected no turn-completed event for a lost reply")
	}
	if h.ui.errorCount() == 0 {
		t.Fatalf("expected an error pushed to the UI")
	}
}

func TestMessageSubscriptionFailureLeavesMachineUsable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	signIn(t, h)

	a := seedSession(t, h.store, "sess-a", "Chat A")
	b := seedSession(t, h.store, "sess-b", "Chat B")

	h.store.FailSubscribeMessages = errors.New("permission denied")

	if err := h.eng.SelectSession(ctx, a); err != nil {
		t.Fatalf("SelectSession failed: %v", err)
	}
	if h.ui.errorCount() == 0 {
		t.Fatalf("expected the subscription failure reported")
	}
	if got := h.store.ActiveMessageSubscriptions(); got != 0 {
		t.Fatalf("expected no live subscription, got %d", got)
	}
	if got := h.eng.State(); got != engine.StateActive {
		t.Fatalf("expected the machine still active, got %q", got)
	}

	h.store.FailSubscribeMessages = nil
	if err := h.eng.SelectSession(ctx, b); err != nil {
		t.Fatalf("SelectSession after recovery failed: %v", err)
	}
	if got := h.store.ActiveMessageSubscriptions(); got != 1 {
		t.Fatalf("expected 1 live subscription after recovery, got %d", got)
	}
}

func TestSessionSubscriptionFailureLeavesSignInUsable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.store.FailSubscribeSessions = errors.New("permission denied")

	if err := h.eng.SignIn(ctx, testUser); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if h.ui.errorCount() == 0 {
		t.Fatalf("expected the subscription failure reported")
	}
	if got := h.eng.State(); got != engine.StateUnsaved {
		t.Fatalf("expected unsaved state, got %q", got)
	}

	// Sends still work without the session-list stream.
	h.store.FailSubscribeSessions = nil
	if _, err := h.eng.Send(ctx, engine.SendInput{Text: "hello"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}
