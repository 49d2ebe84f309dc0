package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/chatbot-insights/internal/api"
	"github.com/Rrens/chatbot-insights/internal/chatbot"
	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/repository/memory"
	"github.com/Rrens/chatbot-insights/internal/repository/redis"
	"github.com/Rrens/chatbot-insights/internal/security"
	"github.com/Rrens/chatbot-insights/internal/service"
	"github.com/Rrens/chatbot-insights/internal/sweeper"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticDirectory struct{}

func (staticDirectory) Lookup(_ context.Context, id string) (*chatbot.Profile, error) {
	return &chatbot.Profile{ID: id, BusinessName: "Acme", ChatbotType: "customer_support"}, nil
}

type echoGenerator struct{}

func (echoGenerator) Answer(_ context.Context, query string, _ *chatbot.Profile) (string, error) {
	return "echo: " + query, nil
}

type joyExtractor struct{}

func (joyExtractor) Extract(_ context.Context, s domain.Session, msgs []domain.Message) *domain.Insight {
	return &domain.Insight{
		SessionID:      s.ID,
		ChatbotID:      s.ChatbotID,
		ProblemSummary: msgs[0].Content,
		BotSolved:      domain.True,
		HumanNeeded:    domain.False,
		Emotion:        domain.EmotionJoy,
	}
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, string) (redis.Decision, error) {
	return redis.Decision{Allowed: false, Limit: 3, Remaining: 0, ResetAt: time.Unix(1700000060, 0)}, nil
}

type busySweeper struct{}

func (busySweeper) RunOnce(context.Context) (sweeper.Report, error) {
	return sweeper.Report{}, sweeper.ErrSweepInProgress
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

type testServer struct {
	handler  http.Handler
	clock    *clock
	sessions *memory.SessionRepository
	messages *memory.MessageRepository
	insights *memory.InsightRepository
	jwt      *security.JWTManager
}

func newTestServer(t *testing.T, mutate func(*api.Deps)) *testServer {
	t.Helper()

	c := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	sessions := memory.NewSessionRepository(memory.WithClock(c.Now))
	messages := memory.NewMessageRepository(memory.WithClock(c.Now))
	insights := memory.NewInsightRepository(memory.WithClock(c.Now))
	jwt := security.NewJWTManager("router-test-secret-32-characters", "chatbot-insights", time.Hour)

	deps := api.Deps{
		Store:    okPinger{},
		Sessions: sessions,
		Messages: messages,
		Insights: insights,
		Chat:     service.NewChatService(sessions, messages, staticDirectory{}, echoGenerator{}, nil),
		Sweeper: sweeper.New(sessions, messages, insights, joyExtractor{}, sweeper.Options{
			IdleTimeout: time.Minute,
			Now:         c.Now,
		}),
		JWT: jwt,
	}
	if mutate != nil {
		mutate(&deps)
	}

	cfg := &config.Config{Server: config.ServerConfig{MiddlewareTimeout: 5 * time.Second}}
	return &testServer{
		handler:  api.NewRouter(cfg, deps),
		clock:    c,
		sessions: sessions,
		messages: messages,
		insights: insights,
		jwt:      jwt,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *testServer) bearer(t *testing.T, chatbots ...string) map[string]string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken("owner-1", chatbots)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, env := srv.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, func(d *api.Deps) { d.Store = okPinger{err: errors.New("refused")} })
	rec, env = down.do(t, http.MethodGet, "/api/v1/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestQuery_RecordsTurnsInOneSession(t *testing.T) {
	srv := newTestServer(t, nil)
	visitor := map[string]string{"X-Visitor-ID": "visitor-7"}

	type reply struct {
		Reply      string `json:"reply"`
		SessionID  string `json:"session_id"`
		NewSession bool   `json:"new_session"`
	}

	rec, env := srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": "my order is late"}, visitor)
	require.Equal(t, http.StatusOK, rec.Code)
	var first reply
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, "echo: my order is late", first.Reply)
	assert.True(t, first.NewSession)
	require.NotEmpty(t, first.SessionID)

	srv.clock.Advance(10 * time.Second)
	_, env = srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": "any update?"}, visitor)
	var second reply
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.False(t, second.NewSession)

	sessions, err := srv.sessions.ListByChatbot(context.Background(), "bot-a", 0, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "visitor-7", sessions[0].VisitorID)

	msgs, err := srv.messages.ListBySession(context.Background(), sessions[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[3].Role)
}

func TestQuery_VisitorFallsBackToClientIP(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": "hi"},
		map[string]string{"X-Real-IP": "203.0.113.9"})
	require.Equal(t, http.StatusOK, rec.Code)

	sessions, err := srv.sessions.ListByChatbot(context.Background(), "bot-a", 0, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "203.0.113.9", sessions[0].VisitorID)
}

func TestQuery_Validation(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, map[string]any{"Query": "field is required"}, env.Error)
}

func TestQuery_RateLimited(t *testing.T) {
	srv := newTestServer(t, func(d *api.Deps) { d.Limiter = denyLimiter{} })

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": "hi"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000060", rec.Header().Get("X-RateLimit-Reset"))

	sessions, err := srv.sessions.ListByChatbot(context.Background(), "bot-a", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestOwnerRoutes_RequireToken(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/chatbots/bot-a/sessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/insights", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/insights", nil, map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOwnerRoutes_DisabledWithoutJWT(t *testing.T) {
	srv := newTestServer(t, func(d *api.Deps) { d.JWT = nil })

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/insights", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": "hi"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOwnerRoutes_SessionsMessagesAndScope(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": "hello"}, map[string]string{"X-Visitor-ID": "v1"})
	srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-b/query", map[string]string{"query": "hello"}, map[string]string{"X-Visitor-ID": "v1"})

	owner := srv.bearer(t, "bot-a")

	rec, env := srv.do(t, http.MethodGet, "/api/v1/chatbots/bot-a/sessions", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []domain.Session
	require.NoError(t, json.Unmarshal(env.Data, &sessions))
	require.Len(t, sessions, 1)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/sessions/"+sessions[0].ID.String()+"/messages", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	assert.Len(t, msgs, 2)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/chatbots/bot-b/sessions", nil, owner)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	others, err := srv.sessions.ListByChatbot(context.Background(), "bot-b", 0, 0)
	require.NoError(t, err)
	require.Len(t, others, 1)
	rec, _ = srv.do(t, http.MethodGet, "/api/v1/sessions/"+others[0].ID.String()+"/messages", nil, owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid/messages", nil, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/insights", nil, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "scoped tokens must name a chatbot")
}

func TestSweep_ClosesIdleSessionAndExposesInsight(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := srv.bearer(t)

	_, env := srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": "refund please"}, map[string]string{"X-Visitor-ID": "v1"})
	var turn struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &turn))

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/sessions/"+turn.SessionID+"/insight", nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.clock.Advance(90 * time.Second)

	rec, env = srv.do(t, http.MethodPost, "/api/v1/sweeps", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var report sweeper.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, sweeper.Report{Scanned: 1, Closed: 1, Insights: 1}, report)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/sessions/"+turn.SessionID+"/insight", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var insight domain.Insight
	require.NoError(t, json.Unmarshal(env.Data, &insight))
	assert.Equal(t, domain.EmotionJoy, insight.Emotion)
	assert.Equal(t, "refund please", insight.ProblemSummary)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/insights?chatbot_id=bot-a&limit=5", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []domain.Insight
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)

	// A new turn after the close starts a fresh session.
	_, env = srv.do(t, http.MethodPost, "/api/v1/chatbots/bot-a/query", map[string]string{"query": "me again"}, map[string]string{"X-Visitor-ID": "v1"})
	var next struct {
		SessionID  string `json:"session_id"`
		NewSession bool   `json:"new_session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &next))
	assert.True(t, next.NewSession)
	assert.NotEqual(t, turn.SessionID, next.SessionID)
}

func TestSweep_Authorization(t *testing.T) {
	srv := newTestServer(t, func(d *api.Deps) { d.Sweeper = busySweeper{} })

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/sweeps", nil, srv.bearer(t, "bot-a"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/sweeps", nil, srv.bearer(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
}

type ctxRecordingSweeper struct {
	err error
}

func (s *ctxRecordingSweeper) RunOnce(ctx context.Context) (sweeper.Report, error) {
	s.err = ctx.Err()
	_, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return sweeper.Report{}, errors.New("manual sweep must be bounded")
	}
	return sweeper.Report{Scanned: 1}, nil
}

func TestSweep_DetachedFromRequestCancellation(t *testing.T) {
	runner := &ctxRecordingSweeper{}
	srv := newTestServer(t, func(d *api.Deps) { d.Sweeper = runner })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sweeps", nil).WithContext(ctx)
	for k, v := range srv.bearer(t) {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, runner.err)
}
