package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/model"
	"github.com/hupe1980/edumesh/retrieval/local"
	"github.com/hupe1980/edumesh/statesync"
	"github.com/hupe1980/edumesh/tutor"
)

func newTestServer(t *testing.T, llm *model.MockModel) *httptest.Server {
	t.Helper()
	corpus := local.New()
	corpus.Add("CBSE-grade-10-Science",
		local.Passage{ID: "p1", Text: "Photosynthesis converts light energy into chemical energy.", Source: "chapter-6"},
	)
	ts := httptest.NewServer(New(tutor.New(llm, corpus)).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, model.NewMockModel("mock"))
	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_Conversation(t *testing.T) {
	llm := model.NewMockModel("mock").
		ScriptText("Photosynthesis converts light energy. Which style would you like?").
		ScriptText("I remember you're studying CBSE Board, Grade 10, Science. Here is an example...")
	ts := newTestServer(t, llm)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{"user_id": "student-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "student-1", body["user_id"])
	sid, ok := body["session_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, sid)

	resp, body = do(t, http.MethodPost, ts.URL+"/v1/sessions/"+sid+"/messages",
		map[string]string{"text": "CBSE-grade-10-Science. Question: What is photosynthesis?"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)
	assert.Equal(t, sid, body["session_id"])
	assert.Equal(t, "Photosynthesis converts light energy. Which style would you like?", body["reply"])

	state, ok := body["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"board":    "CBSE",
		"grade":    "10",
		"subject":  "Science",
		"question": "What is photosynthesis?",
	}, state[statesync.KeyStudentInfo])
	assert.NotNil(t, state[statesync.KeyRAGResults])
	assert.Equal(t, false, state[statesync.KeyStyleSelected])
	assert.Nil(t, state[statesync.KeyCurrentStyle])

	resp, body = do(t, http.MethodPost, ts.URL+"/v1/sessions/"+sid+"/messages", map[string]string{"text": "1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["reply"], "I remember you're studying CBSE Board")

	resp, body = do(t, http.MethodGet, ts.URL+"/v1/sessions/"+sid+"/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, statesync.KeyRAGResults)
	assert.Contains(t, body, statesync.KeyCurrentStyle)
}

func TestServer_DefaultUser(t *testing.T) {
	ts := newTestServer(t, model.NewMockModel("mock"))

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL+"/v1/sessions", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "anonymous", body.UserID)
}

func TestServer_ClientErrors(t *testing.T) {
	ts := newTestServer(t, model.NewMockModel("mock"))
	_, created := do(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{})
	sid := created["session_id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{name: "unknown session state", method: http.MethodGet, path: "/v1/sessions/missing/state", status: http.StatusNotFound},
		{name: "unknown session message", method: http.MethodPost, path: "/v1/sessions/missing/messages", body: map[string]string{"text": "hi"}, status: http.StatusNotFound},
		{name: "empty text", method: http.MethodPost, path: "/v1/sessions/" + sid + "/messages", body: map[string]string{"text": "  "}, status: http.StatusBadRequest},
		{name: "invalid json", method: http.MethodPost, path: "/v1/sessions/" + sid + "/messages", body: "not an object", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

type mockTutor struct{ mock.Mock }

func (m *mockTutor) CreateSession(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockTutor) Ask(ctx context.Context, sessionID, text string) (*tutor.Reply, error) {
	args := m.Called(ctx, sessionID, text)
	reply, _ := args.Get(0).(*tutor.Reply)
	return reply, args.Error(1)
}

func (m *mockTutor) State(ctx context.Context, sessionID string) (statesync.SessionState, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(statesync.SessionState), args.Error(1)
}

func TestServer_InternalErrors(t *testing.T) {
	mt := &mockTutor{}
	mt.On("CreateSession", mock.Anything, "u").Return("", errors.New("store offline"))
	mt.On("State", mock.Anything, "s1").Return(statesync.SessionState{}, nil)
	mt.On("Ask", mock.Anything, "s1", "hello").Return(nil, errors.New("model quota exhausted"))

	ts := httptest.NewServer(New(mt).Handler())
	defer ts.Close()

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{"user_id": "u"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "store offline", body["error"])

	resp, body = do(t, http.MethodPost, ts.URL+"/v1/sessions/s1/messages", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "model quota exhausted", body["error"])

	mt.AssertExpectations(t)
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	s := New(&mockTutor{})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	assert.NoError(t, <-done)
}
