// Package sweeper closes sessions that have been idle past the timeout and
// records one insight for each closed conversation.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/notify"
)

// ErrSweepInProgress is returned by RunOnce while another cycle is running.
var ErrSweepInProgress = errors.New("sweep already in progress")

const (
	DefaultInterval    = 60 * time.Second
	DefaultIdleTimeout = time.Minute
)

// Extractor analyzes a transcript.
type Extractor interface {
	Extract(ctx context.Context, session domain.Session, messages []domain.Message) *domain.Insight
}

// Report summarizes one cycle. A session whose insight failed to persist is
// counted in both Closed and Failed.
type Report struct {
	Scanned  int `json:"scanned"`
	Closed   int `json:"closed"`
	Insights int `json:"insights"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Options configures a Sweeper.
type Options struct {
	Interval    time.Duration
	IdleTimeout time.Duration
	Notifier    notify.Notifier
	Now         func() time.Time
}

// Sweeper is the scheduled inactivity task.
type Sweeper struct {
	sessions  domain.SessionRepository
	messages  domain.MessageRepository
	insights  domain.InsightRepository
	extractor Extractor
	notifier  notify.Notifier

	interval    time.Duration
	idleTimeout time.Duration
	now         func() time.Time

	running atomic.Bool
	cycleMu sync.Mutex

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a Sweeper. Zero options fall back to the package defaults.
func New(
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	insights domain.InsightRepository,
	extractor Extractor,
	opts Options,
) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		sessions:    sessions,
		messages:    messages,
		insights:    insights,
		extractor:   extractor,
		notifier:    opts.Notifier,
		interval:    opts.Interval,
		idleTimeout: opts.IdleTimeout,
		now:         opts.Now,
	}
}

// Start launches the ticker loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
}

// Stop ends the loop and waits for an in-flight cycle to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	// Cycles started through RunOnce directly are waited on too.
	s.cycleMu.Lock()
	s.cycleMu.Unlock()
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.interval).
		Dur("idle_timeout", s.idleTimeout).
		Msg("Inactivity sweeper started")

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-stop:
			log.Info().Msg("Inactivity sweeper stopped")
			return
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("Inactivity sweeper shutting down")
			return
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		log.Debug().Msg("Previous sweep still running, skipping tick")
	case err != nil:
		log.Error().Err(err).Msg("Sweep cycle failed")
	case report.Scanned > 0:
		log.Info().
			Int("scanned", report.Scanned).
			Int("closed", report.Closed).
			Int("insights", report.Insights).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("Sweep cycle completed")
	}
}

// RunOnce executes a single cycle. It fails only when the candidate scan
// itself fails or ctx ends; per-session failures land in the Report. Sessions
// whose analysis was interrupted by ctx stay active and count as Skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	candidates, err := s.sessions.FindIdle(ctx, s.idleTimeout)
	if err != nil {
		return Report{}, err
	}

	// Taken after the scan so every candidate is at or before the cutoff.
	// A visitor who returns from here on moves past it and keeps the session.
	cutoff := s.now().Add(-s.idleTimeout)

	report := Report{Scanned: len(candidates)}
	for _, session := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.sweepSession(ctx, session, cutoff, &report)
	}
	return report, ctx.Err()
}

func (s *Sweeper) sweepSession(ctx context.Context, session domain.Session, cutoff time.Time, report *Report) {
	logger := log.With().
		Str("session_id", session.ID.String()).
		Str("chatbot_id", session.ChatbotID).
		Logger()

	messages, err := s.messages.ListBySession(ctx, session.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load transcript")
		report.Failed++
		return
	}

	var insight *domain.Insight
	if len(messages) > 0 {
		insight = s.extractor.Extract(ctx, session, messages)
	}

	// A cancelled cycle leaves the session open; the extractor's fallback
	// insight does not describe the transcript.
	if ctx.Err() != nil {
		logger.Warn().Err(ctx.Err()).Msg("Sweep cancelled during analysis, session left open")
		report.Skipped++
		return
	}

	closed, err := s.sessions.CloseIfIdle(ctx, session.ID, cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to close idle session")
		report.Failed++
		return
	}
	if !closed {
		logger.Debug().Msg("Session resumed before close, insight discarded")
		report.Skipped++
		return
	}
	report.Closed++
	notify.Fire(ctx, s.notifier, notify.SubjectSessionClosed, session)

	if insight == nil {
		logger.Info().Msg("Closed empty session")
		return
	}

	if err := s.insights.Create(ctx, insight); err != nil {
		if errors.Is(err, domain.ErrInsightExists) {
			logger.Warn().Msg("Insight already recorded for session")
			return
		}
		logger.Error().Err(err).Msg("Failed to persist insight")
		report.Failed++
		return
	}
	report.Insights++
	notify.Fire(ctx, s.notifier, notify.SubjectInsightCreated, insight)

	logger.Info().
		Str("emotion", string(insight.Emotion)).
		Str("human_needed", insight.HumanNeeded.String()).
		Msg("Session closed with insight")
}
