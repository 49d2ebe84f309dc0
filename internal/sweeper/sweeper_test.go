package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/insight"
	"github.com/Rrens/chatbot-insights/internal/notify"
	"github.com/Rrens/chatbot-insights/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock     *fakeClock
	sessions  *memory.SessionRepository
	messages  *memory.MessageRepository
	insights  *memory.InsightRepository
	extractor *MockExtractor
	notifier  *recordingNotifier
}

func newFixture() *fixture {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return &fixture{
		clock:     clock,
		sessions:  memory.NewSessionRepository(memory.WithClock(clock.Now)),
		messages:  memory.NewMessageRepository(memory.WithClock(clock.Now)),
		insights:  memory.NewInsightRepository(memory.WithClock(clock.Now)),
		extractor: new(MockExtractor),
		notifier:  &recordingNotifier{},
	}
}

func (f *fixture) sweeper(messages domain.MessageRepository) *Sweeper {
	if messages == nil {
		messages = f.messages
	}
	return New(f.sessions, messages, f.insights, f.extractor, Options{
		IdleTimeout: 60 * time.Second,
		Notifier:    f.notifier,
		Now:         f.clock.Now,
	})
}

func (f *fixture) session(t *testing.T, visitor string, turns ...string) domain.Session {
	t.Helper()
	ctx := context.Background()
	s, _, err := f.sessions.ResolveOrCreate(ctx, "bot-1", visitor)
	require.NoError(t, err)
	for i, content := range turns {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		_, err := f.messages.Append(ctx, s.ID, role, content)
		require.NoError(t, err)
	}
	return *s
}

func insightFor(s domain.Session) *domain.Insight {
	return &domain.Insight{
		SessionID:   s.ID,
		ChatbotID:   s.ChatbotID,
		BotSolved:   domain.True,
		HumanNeeded: domain.False,
		Emotion:     domain.EmotionNeutral,
	}
}

func TestRunOnce_ClosesIdleSessionWithOneInsight(t *testing.T) {
	f := newFixture()
	s := f.session(t, "10.0.0.1", "hello", "hi, how can I help?")
	f.extractor.On("Extract", mock.Anything, mock.MatchedBy(func(got domain.Session) bool { return got.ID == s.ID }), mock.Anything).
		Return(insightFor(s)).Once()

	f.clock.Advance(90 * time.Second)
	report, err := f.sweeper(nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Closed: 1, Insights: 1}, report)

	got, err := f.sessions.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	all, err := f.insights.List(context.Background(), domain.InsightFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Second cycle finds nothing: the session is no longer active.
	report, err = f.sweeper(nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)

	assert.Equal(t, []string{notify.SubjectSessionClosed, notify.SubjectInsightCreated}, f.notifier.subjects())
	f.extractor.AssertExpectations(t)
}

func TestRunOnce_SkipsActiveSessions(t *testing.T) {
	f := newFixture()
	f.session(t, "v", "hello")

	f.clock.Advance(30 * time.Second)
	report, err := f.sweeper(nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunOnce_EmptySessionClosedWithoutInsight(t *testing.T) {
	f := newFixture()
	s := f.session(t, "v")

	f.clock.Advance(2 * time.Minute)
	report, err := f.sweeper(nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Closed: 1}, report)

	_, err = f.insights.GetBySession(context.Background(), s.ID)
	assert.ErrorIs(t, err, domain.ErrInsightNotFound)
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunOnce_FailureIsIsolated(t *testing.T) {
	f := newFixture()
	broken := f.session(t, "a", "hello")
	healthy := f.session(t, "b", "hello")
	f.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(insightFor(healthy))

	f.clock.Advance(90 * time.Second)
	sw := f.sweeper(&failingMessages{MessageRepository: f.messages, failFor: broken.ID})
	report, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Insights)

	got, err := f.sessions.Get(context.Background(), broken.ID)
	require.NoError(t, err)
	assert.True(t, got.Active, "failed session stays active for the next cycle")
}

func TestRunOnce_ResumedDuringAnalysis(t *testing.T) {
	f := newFixture()
	s := f.session(t, "v", "hello")
	f.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			f.clock.Advance(time.Second)
			_, err := f.sessions.Touch(context.Background(), s.ID)
			assert.NoError(t, err)
		}).
		Return(insightFor(s))

	f.clock.Advance(90 * time.Second)
	report, err := f.sweeper(nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Skipped: 1}, report)

	got, err := f.sessions.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	_, err = f.insights.GetBySession(context.Background(), s.ID)
	assert.ErrorIs(t, err, domain.ErrInsightNotFound)
}

func TestRunOnce_ExistingInsightIsNotDuplicated(t *testing.T) {
	f := newFixture()
	s := f.session(t, "v", "hello")
	require.NoError(t, f.insights.Create(context.Background(), insightFor(s)))
	f.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(insightFor(s))

	f.clock.Advance(90 * time.Second)
	report, err := f.sweeper(nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Closed: 1}, report)

	all, err := f.insights.List(context.Background(), domain.InsightFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRunOnce_SingleFlight(t *testing.T) {
	f := newFixture()
	s := f.session(t, "v", "hello")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(insightFor(s))

	f.clock.Advance(90 * time.Second)
	sw := f.sweeper(nil)

	var first Report
	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		first, firstErr = sw.RunOnce(context.Background())
	}()

	<-entered
	_, err := sw.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(release)
	<-done
	require.NoError(t, firstErr)
	assert.Equal(t, 1, first.Insights)
}

func TestStartStop(t *testing.T) {
	sessions := memory.NewSessionRepository()
	messages := memory.NewMessageRepository()
	insights := memory.NewInsightRepository()
	extractor := new(MockExtractor)

	s, _, err := sessions.ResolveOrCreate(context.Background(), "bot", "v")
	require.NoError(t, err)
	_, err = messages.Append(context.Background(), s.ID, domain.RoleUser, "hello")
	require.NoError(t, err)
	extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(insightFor(*s))

	sw := New(sessions, messages, insights, extractor, Options{
		Interval:    5 * time.Millisecond,
		IdleTimeout: time.Millisecond,
	})
	sw.Start(context.Background())
	sw.Start(context.Background())

	require.Eventually(t, func() bool {
		_, err := insights.GetBySession(context.Background(), s.ID)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	sw.Stop()
	sw.Stop()

	got, err := sessions.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestRunOnce_CancelledDuringAnalysisLeavesSessionOpen(t *testing.T) {
	f := newFixture()
	s := f.session(t, "v1", "I need a human, this is broken", "Let me check")
	f.clock.Advance(2 * time.Minute)

	provider := newBlockingProvider()
	extractor := insight.NewExtractor(provider, insight.Options{Timeout: time.Minute})
	sw := New(f.sessions, f.messages, f.insights, extractor, Options{
		IdleTimeout: 60 * time.Second,
		Notifier:    f.notifier,
		Now:         f.clock.Now,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-provider.started
		cancel()
	}()

	report, err := sw.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Report{Scanned: 1, Skipped: 1}, report)

	got, err := f.sessions.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	_, err = f.insights.GetBySession(context.Background(), s.ID)
	assert.ErrorIs(t, err, domain.ErrInsightNotFound)
	assert.Empty(t, f.notifier.subjects())
}
