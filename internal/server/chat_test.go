package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/log"
	"github.com/solace-labs/solace/internal/pipeline"
	"github.com/solace-labs/solace/internal/rerank"
)

type mockRunner struct {
	deltas    []string
	citations []rerank.Citation
	err       error
	failAfter int // emit this many deltas before err; 0 means fail pre-stream

	lastTurn pipeline.Turn
	calls    int
}

func (m *mockRunner) Run(_ context.Context, turn pipeline.Turn, onDelta pipeline.DeltaFunc) (pipeline.Outcome, error) {
	m.calls++
	m.lastTurn = turn

	var text strings.Builder
	for i, d := range m.deltas {
		if m.err != nil && i >= m.failAfter {
			return pipeline.Outcome{}, m.err
		}
		if err := onDelta(d); err != nil {
			return pipeline.Outcome{}, err
		}
		text.WriteString(d)
	}
	if m.err != nil && m.failAfter >= len(m.deltas) {
		return pipeline.Outcome{}, m.err
	}
	return pipeline.Outcome{Text: text.String(), Citations: m.citations}, nil
}

type mockGuard struct {
	owners map[uuid.UUID]string
	err    error
}

func (m *mockGuard) ProfileOwner(_ context.Context, profileID uuid.UUID) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	owner, ok := m.owners[profileID]
	if !ok {
		return "", knowledge.ErrProfileNotFound
	}
	return owner, nil
}

func newTestHandler(t *testing.T, runner *mockRunner, resolver TokenResolver, guard ProfileGuard) http.Handler {
	t.Helper()
	chat := NewChatHandler(runner, resolver, guard, 100, 100, log.NewNop())
	srv := New(chat, NewHealthHandler(nil), log.NewNop())
	return srv.Handler()
}

func postChat(handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:54321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatRejectsMissingQuery(t *testing.T) {
	handler := newTestHandler(t, &mockRunner{}, nil, nil)

	rec := postChat(handler, `{"query":"  ","userId":"u1"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestChatRejectsMalformedBody(t *testing.T) {
	handler := newTestHandler(t, &mockRunner{}, nil, nil)

	rec := postChat(handler, `{not json`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRejectsInvalidSessionID(t *testing.T) {
	runner := &mockRunner{}
	handler := newTestHandler(t, runner, nil, nil)

	rec := postChat(handler, `{"query":"hi","userId":"u1","sessionId":"not-a-uuid"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, runner.calls)
}

func TestChatStreamsDeltasWithMetaAndDone(t *testing.T) {
	runner := &mockRunner{
		deltas: []string{"Hello ", "there", "!"},
		citations: []rerank.Citation{
			{Title: "Handbook", URL: "https://example.com/h", Similarity: 0.87},
		},
	}
	handler := newTestHandler(t, runner, nil, nil)

	rec := postChat(handler, `{"query":"hi","userId":"u1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "Hello there!"))
	assert.Contains(t, body, "\n[META]{\"citations\":[")
	assert.Contains(t, body, `"title":"Handbook"`)
	assert.True(t, strings.HasSuffix(body, "\n[DONE]"))
	// META comes before DONE.
	assert.Less(t, strings.Index(body, "[META]"), strings.Index(body, "[DONE]"))
}

func TestChatOmitsMetaWithoutCitations(t *testing.T) {
	runner := &mockRunner{deltas: []string{"Just text."}}
	handler := newTestHandler(t, runner, nil, nil)

	rec := postChat(handler, `{"query":"hi","userId":"u1"}`, nil)

	body := rec.Body.String()
	assert.NotContains(t, body, "[META]")
	assert.Equal(t, "Just text.\n[DONE]", body)
}

func TestChatPreStreamFailureReturnsJSONError(t *testing.T) {
	runner := &mockRunner{err: errors.New("provider down")}
	handler := newTestHandler(t, runner, nil, nil)

	rec := postChat(handler, `{"query":"hi","userId":"u1"}`, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
	assert.NotContains(t, rec.Body.String(), "[DONE]")
}

func TestChatMidStreamFailureLeavesPartialBody(t *testing.T) {
	runner := &mockRunner{
		deltas:    []string{"partial ", "answer ", "never sent"},
		err:       errors.New("stream died"),
		failAfter: 2,
	}
	handler := newTestHandler(t, runner, nil, nil)

	rec := postChat(handler, `{"query":"hi","userId":"u1"}`, nil)

	// Status was committed when the first delta went out.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial answer ", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "[DONE]")
}

func TestChatCrossTenantProfileForbidden(t *testing.T) {
	pid := uuid.New()
	guard := &mockGuard{owners: map[uuid.UUID]string{pid: "owner-a"}}
	runner := &mockRunner{deltas: []string{"x"}}
	handler := newTestHandler(t, runner, nil, guard)

	rec := postChat(handler, `{"query":"hi","userId":"intruder","profileId":"`+pid.String()+`"}`, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, runner.calls)
}

func TestChatUnknownProfileForbidden(t *testing.T) {
	guard := &mockGuard{owners: map[uuid.UUID]string{}}
	handler := newTestHandler(t, &mockRunner{}, nil, guard)

	rec := postChat(handler, `{"query":"hi","userId":"u1","profileId":"`+uuid.NewString()+`"}`, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChatOwnedProfilePasses(t *testing.T) {
	pid := uuid.New()
	guard := &mockGuard{owners: map[uuid.UUID]string{pid: "coach-1"}}
	runner := &mockRunner{deltas: []string{"ok"}}
	handler := newTestHandler(t, runner, nil, guard)

	rec := postChat(handler, `{"query":"hi","userId":"coach-1","profileId":"`+pid.String()+`"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, runner.lastTurn.ProfileID)
	assert.Equal(t, pid, *runner.lastTurn.ProfileID)
}

func TestChatBearerTokenWinsOverBodyUserID(t *testing.T) {
	resolver := func(_ context.Context, token string) (string, error) {
		if token == "tok-123" {
			return "user-42", nil
		}
		return "", errors.New("unknown token")
	}
	runner := &mockRunner{deltas: []string{"ok"}}
	handler := newTestHandler(t, runner, resolver, nil)

	postChat(handler, `{"query":"hi","userId":"spoofed"}`,
		map[string]string{"Authorization": "Bearer tok-123"})

	assert.Equal(t, "user-42", runner.lastTurn.UserID)
}

func TestChatInvalidTokenDowngradesToBodyUser(t *testing.T) {
	resolver := func(context.Context, string) (string, error) {
		return "", errors.New("expired")
	}
	runner := &mockRunner{deltas: []string{"ok"}}
	handler := newTestHandler(t, runner, resolver, nil)

	postChat(handler, `{"query":"hi","userId":"u1"}`,
		map[string]string{"Authorization": "Bearer expired-tok"})

	assert.Equal(t, "u1", runner.lastTurn.UserID)
}

func TestChatMissingIdentityBecomesAnonymous(t *testing.T) {
	runner := &mockRunner{deltas: []string{"ok"}}
	handler := newTestHandler(t, runner, nil, nil)

	postChat(handler, `{"query":"hi"}`, nil)

	assert.True(t, strings.HasPrefix(runner.lastTurn.UserID, "anon-"))
	// Same caller address yields the same identity.
	first := runner.lastTurn.UserID
	postChat(handler, `{"query":"hi again"}`, nil)
	assert.Equal(t, first, runner.lastTurn.UserID)
}

func TestChatGeneratesSessionIDWhenMissing(t *testing.T) {
	runner := &mockRunner{deltas: []string{"ok"}}
	handler := newTestHandler(t, runner, nil, nil)

	postChat(handler, `{"query":"hi","userId":"u1"}`, nil)

	assert.NotEqual(t, uuid.Nil, runner.lastTurn.SessionID)
}

func TestChatRateLimitReturns429WithRetryAfter(t *testing.T) {
	runner := &mockRunner{deltas: []string{"ok"}}
	chat := NewChatHandler(runner, nil, nil, 0.5, 1, log.NewNop())
	srv := New(chat, NewHealthHandler(nil), log.NewNop())
	handler := srv.Handler()

	first := postChat(handler, `{"query":"hi","userId":"u1"}`, nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := postChat(handler, `{"query":"hi","userId":"u1"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), `"error"`)
}

func TestChatRateLimitIsPerUser(t *testing.T) {
	runner := &mockRunner{deltas: []string{"ok"}}
	chat := NewChatHandler(runner, nil, nil, 0.5, 1, log.NewNop())
	srv := New(chat, NewHealthHandler(nil), log.NewNop())
	handler := srv.Handler()

	require.Equal(t, http.StatusOK, postChat(handler, `{"query":"hi","userId":"u1"}`, nil).Code)
	assert.Equal(t, http.StatusOK, postChat(handler, `{"query":"hi","userId":"u2"}`, nil).Code)
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestHandler(t, &mockRunner{}, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReportsUnavailable(t *testing.T) {
	chat := NewChatHandler(&mockRunner{}, nil, nil, 100, 100, log.NewNop())
	health := NewHealthHandler(func(context.Context) error {
		return errors.New("database unreachable")
	})
	srv := New(chat, health, log.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoveryMiddlewareCatchesPanics(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := chain(panicky, recoveryMiddleware(log.NewNop()), loggingMiddleware(log.NewNop()))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
