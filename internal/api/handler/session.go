package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/chatbot-insights/internal/api/middleware"
	"github.com/Rrens/chatbot-insights/internal/api/response"
	"github.com/Rrens/chatbot-insights/internal/domain"
)

// SessionHandler serves the owner views of sessions and their insights
type SessionHandler struct {
	sessions domain.SessionRepository
	messages domain.MessageRepository
	insights domain.InsightRepository
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	insights domain.InsightRepository,
) *SessionHandler {
	return &SessionHandler{sessions: sessions, messages: messages, insights: insights}
}

// List returns sessions for a chatbot, most recently active first
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	chatbotID := chi.URLParam(r, "chatbotID")
	if !canAccess(r, chatbotID) {
		response.Forbidden(w, "access denied")
		return
	}

	limit, offset := pagination(r)
	sessions, err := h.sessions.ListByChatbot(r.Context(), chatbotID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("chatbot_id", chatbotID).Msg("Failed to list sessions")
		response.InternalError(w, "failed to list sessions")
		return
	}

	response.OK(w, sessions)
}

// Messages returns the transcript of a session
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	messages, err := h.messages.ListBySession(r.Context(), session.ID)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Failed to list messages")
		response.InternalError(w, "failed to list messages")
		return
	}

	response.OK(w, messages)
}

// Insight returns the insight extracted from a closed session
func (h *SessionHandler) Insight(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	insight, err := h.insights.GetBySession(r.Context(), session.ID)
	if err != nil {
		if errors.Is(err, domain.ErrInsightNotFound) {
			response.NotFound(w, "insight not found")
			return
		}
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Failed to get insight")
		response.InternalError(w, "failed to get insight")
		return
	}

	response.OK(w, insight)
}

// ListInsights returns insights, optionally for one chatbot
func (h *SessionHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	chatbotID := r.URL.Query().Get("chatbot_id")

	claims, _ := middleware.GetClaims(r.Context())
	if chatbotID == "" && claims != nil && len(claims.Chatbots) > 0 {
		response.BadRequest(w, "chatbot_id is required for this token")
		return
	}
	if chatbotID != "" && !canAccess(r, chatbotID) {
		response.Forbidden(w, "access denied")
		return
	}

	limit, offset := pagination(r)
	insights, err := h.insights.List(r.Context(), domain.InsightFilter{
		ChatbotID: chatbotID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list insights")
		response.InternalError(w, "failed to list insights")
		return
	}

	response.OK(w, insights)
}

func (h *SessionHandler) loadSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.BadRequest(w, "invalid session ID")
		return nil, false
	}

	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return nil, false
		}
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to get session")
		response.InternalError(w, "failed to get session")
		return nil, false
	}

	// Foreign sessions look missing rather than forbidden.
	if !canAccess(r, session.ChatbotID) {
		response.NotFound(w, "session not found")
		return nil, false
	}
	return session, true
}

func canAccess(r *http.Request, chatbotID string) bool {
	claims, ok := middleware.GetClaims(r.Context())
	return ok && claims.CanAccess(chatbotID)
}
