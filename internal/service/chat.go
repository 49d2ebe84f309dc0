package service

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/chatbot-insights/internal/answer"
	"github.com/Rrens/chatbot-insights/internal/chatbot"
	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/notify"
)

// Replies substituted when the answer cannot be produced.
const (
	ApologyTimeout    = "I'm sorry, the response is taking longer than expected. Please try again in a moment."
	ApologyConnection = "I'm sorry, I'm having trouble connecting right now. Please try again shortly."
	ApologyGeneric    = "I'm sorry, something went wrong while processing your question. Please try again."
)

// TurnRequest is one visitor query.
type TurnRequest struct {
	ChatbotID string
	VisitorID string
	Query     string
}

// BookkeepingOutcome reports what happened to the session and message log
// during a turn. Err joins every swallowed failure.
type BookkeepingOutcome struct {
	SessionID  uuid.UUID
	NewSession bool
	Err        error
}

// TurnResult is always safe to show: Reply is either the answer or an apology.
type TurnResult struct {
	Reply       string
	AnswerErr   error
	Bookkeeping BookkeepingOutcome
}

// ChatService coordinates a visitor turn with the session store and message log.
type ChatService struct {
	sessions  domain.SessionRepository
	messages  domain.MessageRepository
	directory chatbot.Directory
	generator answer.Generator
	notifier  notify.Notifier
}

// NewChatService creates a new chat service. A nil notifier disables push.
func NewChatService(
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	directory chatbot.Directory,
	generator answer.Generator,
	notifier notify.Notifier,
) *ChatService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &ChatService{
		sessions:  sessions,
		messages:  messages,
		directory: directory,
		generator: generator,
		notifier:  notifier,
	}
}

// HandleTurn answers the query and records both halves of the turn. Store
// failures never change the reply; they surface only in Bookkeeping.
func (s *ChatService) HandleTurn(ctx context.Context, req TurnRequest) TurnResult {
	logger := log.With().
		Str("chatbot_id", req.ChatbotID).
		Str("visitor_id", req.VisitorID).
		Logger()

	var result TurnResult
	var bookkeepingErrs []error
	record := func(err error, msg string) {
		logger.Error().Err(err).Msg(msg)
		bookkeepingErrs = append(bookkeepingErrs, err)
	}

	session, created, err := s.sessions.ResolveOrCreate(ctx, req.ChatbotID, req.VisitorID)
	if err != nil {
		record(err, "Failed to resolve session")
	} else {
		result.Bookkeeping.SessionID = session.ID
		result.Bookkeeping.NewSession = created
		logger = logger.With().Str("session_id", session.ID.String()).Logger()
		if created {
			logger.Info().Msg("Started new session")
		}
	}

	if session != nil {
		if _, err := s.messages.Append(ctx, session.ID, domain.RoleUser, req.Query); err != nil {
			record(err, "Failed to save user message")
		}
	}

	result.Reply, result.AnswerErr = s.answer(ctx, req)
	if result.AnswerErr != nil {
		logger.Warn().Err(result.AnswerErr).Msg("Answer generation failed, replying with apology")
	}

	if session != nil {
		msg, err := s.messages.Append(ctx, session.ID, domain.RoleAssistant, result.Reply)
		if err != nil {
			record(err, "Failed to save assistant message")
		} else {
			notify.Fire(ctx, s.notifier, notify.ChatSubject(req.ChatbotID, req.VisitorID), msg)
		}

		if _, err := s.sessions.Touch(ctx, session.ID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			record(err, "Failed to touch session")
		}
	}

	result.Bookkeeping.Err = errors.Join(bookkeepingErrs...)
	return result
}

func (s *ChatService) answer(ctx context.Context, req TurnRequest) (string, error) {
	profile, err := s.directory.Lookup(ctx, req.ChatbotID)
	if err != nil {
		return ApologyGeneric, err
	}

	reply, err := s.generator.Answer(ctx, req.Query, profile)
	if err != nil {
		return Apology(err), err
	}
	return reply, nil
}

// Apology picks the reply substituted for a failed answer.
func Apology(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ApologyTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ApologyConnection
	}
	return ApologyGeneric
}
