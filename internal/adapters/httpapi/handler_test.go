package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatiq/chatiq/internal/adapters/httpapi"
	"github.com/chatiq/chatiq/internal/adapters/llm"
	"github.com/chatiq/chatiq/internal/adapters/storage/memory"
	"github.com/chatiq/chatiq/internal/app/engine"
	"github.com/chatiq/chatiq/internal/app/feedback"
	"github.com/chatiq/chatiq/internal/config"
	"github.com/chatiq/chatiq/internal/domain"
)

// nopUI satisfies the engine's listener port; the HTTP tests only care
// about command responses.
type nopUI struct{}

func (nopUI) OnSessionListChanged([]*domain.Session, domain.SessionID) {}
func (nopUI) OnMessageListChanged([]*domain.Message)                   {}
func (nopUI) OnTurnCompleted(*domain.Message)                          {}
func (nopUI) OnError(string)                                           {}

type nopLocal struct{}

func (nopLocal) SaveActiveSession(domain.UserID, domain.SessionID) error { return nil }
func (nopLocal) LoadActiveSession(domain.UserID) (domain.SessionID, bool) {
	return "", false
}
func (nopLocal) ClearActiveSession(domain.UserID) error { return nil }

func newTestServer(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	eng := engine.New(store, llm.NewMockCompletion(), nopUI{}, nopLocal{},
		config.NewKeywordPolicy([]string{"badword"}))
	if err := eng.SignIn(context.Background(), "test-user"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	fb := feedback.NewService(store, eng.Notes())
	return httpapi.NewServer(eng, fb), store
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSessionStateReflectsEngine(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		State  string `json:"state"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}
	if resp.State != "unsaved" || resp.UserID != "test-user" {
		t.Fatalf("unexpected state response: %+v", resp)
	}
}

func TestSendMessageRoundTrip(t *testing.T) {
	srv, store := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/messages", []byte(`{"text":"Hello"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		SessionID  string `json:"session_id"`
		BotMessage *struct {
			Content string `json:"content"`
		} `json:"bot_message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}
	if resp.SessionID == "" || resp.BotMessage == nil || resp.BotMessage.Content == "" {
		t.Fatalf("unexpected send response: %s", w.Body.String())
	}

	if got := len(store.Messages(domain.SessionID(resp.SessionID))); got != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", got)
	}
}

func TestSendMessageWithImage(t *testing.T) {
	srv, store := newTestServer(t)

	// "AQI=" is {0x01, 0x02}
	body := []byte(`{"text":"what is this?","image_base64":"AQI=","mime_type":"image/jpeg"}`)
	w := doJSON(t, srv, http.MethodPost, "/messages", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		SessionID    string `json:"session_id"`
		ImageMessage *struct {
			Kind     string `json:"kind"`
			MimeType string `json:"mime_type"`
		} `json:"image_message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}
	if resp.ImageMessage == nil || resp.ImageMessage.Kind != "image" || resp.ImageMessage.MimeType != "image/jpeg" {
		t.Fatalf("unexpected image message: %s", w.Body.String())
	}
	if got := len(store.Messages(domain.SessionID(resp.SessionID))); got != 3 {
		t.Fatalf("expected image + user + bot messages, got %d", got)
	}
}

func TestSendMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	if w := doJSON(t, srv, http.MethodPost, "/messages", []byte(`{"text":""}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty message, got %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodPost, "/messages", []byte(`{"text":"a badword"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a blocked message, got %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodPost, "/messages", []byte(`{"image_base64":"not-base64!!"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid base64, got %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodPost, "/messages", []byte(`not json`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestNewChatAndSelect(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/messages", []byte(`{"text":"first chat"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("send failed: %d %s", w.Code, w.Body.String())
	}
	var sent struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sent); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}

	if w := doJSON(t, srv, http.MethodPost, "/session/new", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for new chat, got %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodGet, "/session", nil)
	var state struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}
	if state.State != "unsaved" {
		t.Fatalf("expected unsaved state after new chat, got %q", state.State)
	}

	body := []byte(`{"session_id":"` + sent.SessionID + `"}`)
	w = doJSON(t, srv, http.MethodPost, "/session/select", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for select, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestDeleteSession(t *testing.T) {
	srv, store := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/messages", []byte(`{"text":"to be deleted"}`))
	var sent struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sent); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}

	if w := doJSON(t, srv, http.MethodDelete, "/sessions/"+sent.SessionID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := len(store.Sessions("test-user")); got != 0 {
		t.Fatalf("expected no sessions left, got %d", got)
	}

	if w := doJSON(t, srv, http.MethodDelete, "/sessions/"+sent.SessionID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing session, got %d", w.Code)
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/messages", []byte(`{"text":"tell me a fact"}`))
	var sent struct {
		BotMessage struct {
			ID string `json:"id"`
		} `json:"bot_message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sent); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}

	body := []byte(`{"message_id":"` + sent.BotMessage.ID + `","kind":"inaccurate","content":"wrong fact"}`)
	if w := doJSON(t, srv, http.MethodPost, "/feedback", body); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", w.Code, w.Body.String())
	}

	records, err := store.QueryFeedbackSince(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("QueryFeedbackSince failed: %v", err)
	}
	if len(records) != 1 || records[0].Kind != domain.FeedbackInaccurate {
		t.Fatalf("expected 1 inaccurate record, got %+v", records)
	}

	if w := doJSON(t, srv, http.MethodPost, "/feedback", []byte(`{"kind":"helpful"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a message id, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	if w := doJSON(t, srv, http.MethodPut, "/messages", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodPost, "/session", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
