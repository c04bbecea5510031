package handlers

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

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rick-api/models"
	"rick-api/store"
	"rick-api/workflows"
)

const testSecret = "s3cret"

type scriptedCompleter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *scriptedCompleter) Complete(_ context.Context, messages []models.ChatMessage, temperature float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	switch temperature {
	case 0.3:
		return "Jaki jest Twój cel?", nil
	case 0.4:
		return "szkic", nil
	default:
		return "wersja finalna", nil
	}
}

type testServer struct {
	router *gin.Engine
	store  *store.Store
	llm    *scriptedCompleter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	st, err := store.Open(context.Background(), "sqlite3", ":memory:?_foreign_keys=on", store.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	llm := &scriptedCompleter{}
	logger := zap.NewNop()
	chat := NewChatHandler(st, workflows.NewChatWorkflows(st, llm, logger), logger)
	router := NewRouter(RouterConfig{APISecret: testSecret, CORSOrigins: []string{"*"}, MetricsEnabled: true}, chat, logger)

	return &testServer{router: router, store: st, llm: llm}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
}

func TestProtectedEndpointsRequireBearer(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		method, path, token string
	}{
		{http.MethodPost, "/api/reply", ""},
		{http.MethodPost, "/api/reply", "wrong"},
		{http.MethodGet, "/api/conversations", ""},
		{http.MethodGet, "/api/history/" + uuid.NewString(), "wrong"},
	}
	for _, tc := range cases {
		rec := srv.do(t, tc.method, tc.path, map[string]any{"message": "nie wiem"}, tc.token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
		assert.JSONEq(t, `{"detail": "Unauthorized"}`, rec.Body.String())
	}

	conversations, err := srv.store.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, conversations, "rejected requests must not touch the store")
	assert.Zero(t, srv.llm.calls)
}

func TestReplyQuestionsThenAnswerInSameConversation(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/reply", map[string]any{"message": "nie wiem co robić"}, testSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[models.Reply](t, rec)
	assert.Equal(t, models.ReplyQuestions, first.Type)
	assert.Equal(t, "Jaki jest Twój cel?", first.Content)
	require.NotEqual(t, uuid.Nil, first.ConversationID)
	assert.Equal(t, 1, srv.llm.calls)

	rec = srv.do(t, http.MethodPost, "/api/reply", map[string]any{
		"message":         "cel: wzrost, kpi: 10%, budżet: 5k, horyzont: 3 miesiące",
		"conversation_id": first.ConversationID.String(),
		"mode":            "balanced",
	}, testSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[models.Reply](t, rec)
	assert.Equal(t, models.ReplyAnswer, second.Type)
	assert.Equal(t, "wersja finalna", second.Content)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, 3, srv.llm.calls)

	rec = srv.do(t, http.MethodGet, "/api/conversations", nil, testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.ConversationList](t, rec)
	require.Len(t, list.Items, 1, "a supplied conversation id must not create another conversation")
	assert.Equal(t, "nie wiem co robić", list.Items[0].Title)

	rec = srv.do(t, http.MethodGet, "/api/history/"+first.ConversationID.String(), nil, testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[models.History](t, rec)
	require.Len(t, history.Messages, 4)

	var got []string
	for _, m := range history.Messages {
		got = append(got, string(m.Role)+":"+m.Content)
	}
	assert.Equal(t, []string{
		"user:nie wiem co robić",
		"assistant:Jaki jest Twój cel?",
		"user:cel: wzrost, kpi: 10%, budżet: 5k, horyzont: 3 miesiące",
		"assistant:wersja finalna",
	}, got)
}

func TestConversationsNewestFirstAndHistoryIsolation(t *testing.T) {
	srv := newTestServer(t)

	var ids []uuid.UUID
	for _, msg := range []string{"pierwsza?", "druga?"} {
		rec := srv.do(t, http.MethodPost, "/api/reply", map[string]any{"message": msg}, testSecret)
		require.Equal(t, http.StatusOK, rec.Code)
		ids = append(ids, decode[models.Reply](t, rec).ConversationID)
	}

	rec := srv.do(t, http.MethodGet, "/api/conversations", nil, testSecret)
	list := decode[models.ConversationList](t, rec)
	require.Len(t, list.Items, 2)
	assert.Equal(t, ids[1], list.Items[0].ID)
	assert.Equal(t, ids[0], list.Items[1].ID)

	rec = srv.do(t, http.MethodGet, "/api/history/"+ids[0].String(), nil, testSecret)
	history := decode[models.History](t, rec)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "pierwsza?", history.Messages[0].Content)

	rec = srv.do(t, http.MethodGet, "/api/history/"+uuid.NewString(), nil, testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages": []}`, rec.Body.String())
}

func TestReplyBadRequests(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/reply", map[string]any{"conversation_id": uuid.NewString()}, testSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "message is required")

	rec = srv.do(t, http.MethodPost, "/api/reply", map[string]any{"message": "hej", "conversation_id": "not-a-uuid"}, testSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/history/not-a-uuid", nil, testSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, srv.llm.calls)
}

func TestReplyEmptyMessageAsksQuestions(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/reply", map[string]any{"message": ""}, testSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.ReplyQuestions, decode[models.Reply](t, rec).Type)
}

func TestReplyUnknownConversationIsStoreError(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/reply", map[string]any{
		"message":         "nie wiem",
		"conversation_id": uuid.NewString(),
	}, testSecret)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail": "store error"}`, rec.Body.String())
	assert.Zero(t, srv.llm.calls)
}

func TestReplyUpstreamFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.llm.err = errors.New("connection reset")

	rec := srv.do(t, http.MethodPost, "/api/reply", map[string]any{"message": "nie wiem"}, testSecret)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"detail": "upstream model error"}`, rec.Body.String())

	conversations, err := srv.store.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	history, err := srv.store.GetHistory(context.Background(), conversations[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 1, "the user message stays logged without rollback")
	assert.Equal(t, models.RoleUser, history[0].Role)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/reply", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS([]string{"https://rick.example.com"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://rick.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://rick.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/reply", map[string]any{"message": "nie wiem"}, testSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rick_reply_turns_total")
}
