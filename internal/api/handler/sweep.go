package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/chatbot-insights/internal/api/middleware"
	"github.com/Rrens/chatbot-insights/internal/api/response"
	"github.com/Rrens/chatbot-insights/internal/sweeper"
)

// ManualSweepTimeout bounds a cycle started over HTTP. The cycle is detached
// from the request, so a client disconnect does not interrupt analysis.
const ManualSweepTimeout = 5 * time.Minute

// SweepRunner runs one sweeper cycle.
type SweepRunner interface {
	RunOnce(ctx context.Context) (sweeper.Report, error)
}

// SweepHandler lets owners close idle sessions without waiting for the ticker
type SweepHandler struct {
	runner SweepRunner
}

// NewSweepHandler creates a new sweep handler
func NewSweepHandler(runner SweepRunner) *SweepHandler {
	return &SweepHandler{runner: runner}
}

// Trigger runs a cycle now and returns its report
func (h *SweepHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || len(claims.Chatbots) > 0 {
		response.Forbidden(w, "sweeps require an unrestricted token")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), ManualSweepTimeout)
	defer cancel()

	report, err := h.runner.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, sweeper.ErrSweepInProgress) {
			response.Conflict(w, "a sweep is already running")
			return
		}
		log.Error().Err(err).Msg("Manual sweep failed")
		response.InternalError(w, "sweep failed")
		return
	}

	log.Info().
		Str("owner", claims.OwnerID()).
		Int("closed", report.Closed).
		Int("insights", report.Insights).
		Msg("Manual sweep finished")
	response.OK(w, report)
}
