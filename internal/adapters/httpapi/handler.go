package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chatiq/chatiq/internal/app/engine"
	"github.com/chatiq/chatiq/internal/app/feedback"
	"github.com/chatiq/chatiq/internal/domain"
)

// Server is the local control surface a chat front-end drives the engine
// through. View updates flow the other way, through the engine's UI
// listener; these endpoints only issue commands and report state.
type Server struct {
	eng *engine.Engine
	fb  *feedback.Service
}

func NewServer(eng *engine.Engine, fb *feedback.Service) http.Handler {
	s := &Server{eng: eng, fb: fb}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /session            →  GET: engine state
	// /session/new        → POST: start a fresh unsaved chat
	// /session/select     → POST: switch the active session
	mux.HandleFunc("/session", s.handleSessionState)
	mux.HandleFunc("/session/new", s.handleNewChat)
	mux.HandleFunc("/session/select", s.handleSelectSession)

	// /sessions/{id}      → DELETE: remove a session and its messages
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	// /messages           → POST: send a user turn
	mux.HandleFunc("/messages", s.handleSendMessage)

	// /feedback           → POST: record feedback on a bot message
	mux.HandleFunc("/feedback", s.handleFeedback)

	return chainMiddlewares(mux, withRequestID, withLogging, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type sessionStateResponse struct {
	State           string `json:"state"`
	UserID          string `json:"user_id,omitempty"`
	ActiveSessionID string `json:"active_session_id,omitempty"`
}

type selectSessionRequest struct {
	SessionID string `json:"session_id"`
}

type sendMessageRequest struct {
	Text        string `json:"text,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	MimeType  string    `json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sendMessageResponse struct {
	SessionID    string           `json:"session_id"`
	ImageMessage *messageResponse `json:"image_message,omitempty"`
	UserMessage  *messageResponse `json:"user_message,omitempty"`
	BotMessage   *messageResponse `json:"bot_message"`
}

type feedbackRequest struct {
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id"`
	Kind      string `json:"kind"`
	Content   string `json:"content,omitempty"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, sessionStateResponse{
		State:           string(s.eng.State()),
		UserID:          string(s.eng.User()),
		ActiveSessionID: string(s.eng.ActiveSession()),
	})
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.eng.StartNewChat()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.eng.State())})
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req selectSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		badRequest(w, "session_id is required")
		return
	}

	if err := s.eng.SelectSession(r.Context(), domain.SessionID(req.SessionID)); err != nil {
		if errors.Is(err, engine.ErrNotSignedIn) {
			writeError(w, http.StatusConflict, "not signed in")
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"active_session_id": string(s.eng.ActiveSession()),
	})
}

// /sessions/{id}
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.eng.DeleteSession(r.Context(), domain.SessionID(id)); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				http.NotFound(w, r)
				return
			}
			internalError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	in := engine.SendInput{Text: req.Text}
	if req.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			badRequest(w, "image_base64 is not valid base64")
			return
		}
		mime := req.MimeType
		if mime == "" {
			mime = "image/png"
		}
		in.Image = &domain.ImageAttachment{Data: data, MimeType: mime}
	}

	out, err := s.eng.Send(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptyMessage), errors.Is(err, engine.ErrQueryRejected):
			badRequest(w, err.Error())
		case errors.Is(err, engine.ErrNotSignedIn):
			writeError(w, http.StatusConflict, "not signed in")
		default:
			internalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		SessionID:    string(out.SessionID),
		ImageMessage: toMessageResponse(out.ImageMessage),
		UserMessage:  toMessageResponse(out.UserMessage),
		BotMessage:   toMessageResponse(out.BotMessage),
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.MessageID == "" {
		badRequest(w, "message_id is required")
		return
	}

	sessionID := domain.SessionID(req.SessionID)
	if sessionID == "" {
		sessionID = s.eng.ActiveSession()
	}

	err := s.fb.Record(r.Context(), feedback.RecordInput{
		UserID:    s.eng.User(),
		SessionID: sessionID,
		MessageID: domain.MessageID(req.MessageID),
		Kind:      domain.FeedbackKind(req.Kind),
		Content:   req.Content,
	})
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func toMessageResponse(m *domain.Message) *messageResponse {
	if m == nil {
		return nil
	}
	return &messageResponse{
		ID:        string(m.ID),
		SessionID: string(m.SessionID),
		Sender:    string(m.Sender),
		Kind:      string(m.Kind),
		Content:   m.Content,
		MimeType:  m.MimeType,
		CreatedAt: m.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func internalError(w http.ResponseWriter, _ error) {
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
