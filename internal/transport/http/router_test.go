package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/auth"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	tokens *auth.JWTManager
}

func newTestEnv(t *testing.T, cfg RouterConfig) *testEnv {
	t.Helper()
	tokens, err := auth.NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)
	sets := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(map[string]domain.QuestionSet{
		"set-1": {ID: "set-1", Questions: sampleQuestions()},
	}), time.Minute)
	service := app.NewArenaService(memory.NewRoomStore(), sets, memory.NewEventHub(), nil, app.Options{})
	return &testEnv{router: NewRouter(service, tokens, nil, cfg), tokens: tokens}
}

func (e *testEnv) token(t *testing.T, id, name string) string {
	t.Helper()
	token, err := e.tokens.Generate(domain.Identity{PlayerID: id, Name: name}, time.Now())
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
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
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRoomFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	hostToken := env.token(t, "host", "Host")
	playerToken := env.token(t, "p1", "Alice")

	rec := env.do(t, http.MethodPost, "/rooms", hostToken, map[string]any{"questions": sampleQuestions()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	room := decode[domain.Room](t, rec)
	code := room.Code

	rec = env.do(t, http.MethodGet, "/rooms/"+code+"/validate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true,"started":false,"playerCount":0,"questionCount":2}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/join", playerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Alice", decode[domain.Player](t, rec).Name)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/advance", playerToken, map[string]any{"action": "START_QUIZ"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/advance", hostToken, map[string]any{"action": "start_quiz"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.EffectStarted, decode[domain.Transition](t, rec).Effect)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/answers", playerToken, map[string]any{"questionIndex": 0, "answerIndex": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[domain.AnswerResult](t, rec)
	assert.True(t, result.Correct)
	assert.Equal(t, 10, result.Points)
	assert.Equal(t, "4", result.CorrectAnswerText)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/answers", playerToken, map[string]any{"questionIndex": 0, "answerIndex": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_answered", decode[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/advance", hostToken, map[string]any{"action": "FINISH_QUIZ"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/advance", hostToken, map[string]any{"action": "NEXT_QUESTION"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/answers", playerToken, map[string]any{"questionIndex": 1, "answerIndex": 3})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = env.do(t, http.MethodGet, "/rooms/"+code+"/validate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[domain.Validation](t, rec)
	assert.False(t, v.Valid)
	assert.Equal(t, domain.ReasonFinished, v.Reason)

	rec = env.do(t, http.MethodGet, "/rooms/"+code+"/analytics", playerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/rooms/"+code+"/analytics", hostToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[domain.Analytics](t, rec)
	require.Len(t, report.PlayerStats, 1)
	assert.Equal(t, 1.0, report.PlayerStats[0].Accuracy)
	assert.Equal(t, 10.0, report.Summary.AverageScore)
}

func TestRequestsNeedIdentity(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do(t, http.MethodPost, "/rooms", "", map[string]any{"questionSetId": "set-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/rooms", "garbage", map[string]any{"questionSetId": "set-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestBadPayloads(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	hostToken := env.token(t, "host", "Host")

	rec := env.do(t, http.MethodPost, "/rooms", hostToken, map[string]any{"questionSetId": "set-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	code := decode[domain.Room](t, rec).Code

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/advance", hostToken, map[string]any{"action": "REWIND"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/answers", hostToken, map[string]any{"answerIndex": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/rooms", hostToken, map[string]any{"questionSetId": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "question_set_not_found", decode[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/rooms/ZZZZZZ/join", hostToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnswerRateLimit(t *testing.T) {
	env := newTestEnv(t, RouterConfig{AnswersPerSecond: 0.001, AnswerBurst: 1})
	hostToken := env.token(t, "host", "Host")
	playerToken := env.token(t, "p1", "Alice")

	rec := env.do(t, http.MethodPost, "/rooms", hostToken, map[string]any{"questionSetId": "set-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	code := decode[domain.Room](t, rec).Code
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/rooms/"+code+"/join", playerToken, nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/rooms/"+code+"/advance", hostToken, map[string]any{"action": "START_QUIZ"}).Code)

	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/answers", playerToken, map[string]any{"questionIndex": 0, "answerIndex": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/rooms/"+code+"/answers", playerToken, map[string]any{"questionIndex": 0, "answerIndex": 0})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrAlreadyAnswered, http.StatusConflict},
		{domain.ErrRoomFull, http.StatusConflict},
		{domain.ErrRoomFinished, http.StatusGone},
		{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectIndex: 1},
		{Prompt: "Largest planet?", Options: []string{"Mars", "Venus", "Earth", "Jupiter"}, CorrectIndex: 3},
	}
}
