package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Rrens/chatbot-insights/internal/api/middleware"
	"github.com/Rrens/chatbot-insights/internal/api/response"
	"github.com/Rrens/chatbot-insights/internal/service"
)

// TurnHandler runs one visitor turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req service.TurnRequest) service.TurnResult
}

// ChatHandler serves the public widget endpoint
type ChatHandler struct {
	chat TurnHandler
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat TurnHandler) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type queryRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
}

type queryResponse struct {
	Reply      string     `json:"reply"`
	SessionID  *uuid.UUID `json:"session_id,omitempty"`
	NewSession bool       `json:"new_session"`
}

// Query answers a visitor question. The reply is always 200: upstream and
// bookkeeping failures are already folded into it.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	chatbotID := chi.URLParam(r, "chatbotID")

	var req queryRequest
	if msg := decodeJSON(r, &req); msg != nil {
		response.BadRequest(w, msg)
		return
	}

	result := h.chat.HandleTurn(r.Context(), service.TurnRequest{
		ChatbotID: chatbotID,
		VisitorID: middleware.VisitorID(r),
		Query:     req.Query,
	})

	resp := queryResponse{
		Reply:      result.Reply,
		NewSession: result.Bookkeeping.NewSession,
	}
	if id := result.Bookkeeping.SessionID; id != uuid.Nil {
		resp.SessionID = &id
	}
	response.OK(w, resp)
}
