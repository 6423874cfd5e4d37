package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-chat-hub/infra/auth/jwt"
	"github.com/webitel/im-chat-hub/internal/domain/event"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
)

type forwarded struct {
	kind event.Kind
	raw  string
}

type recordingForwarder struct {
	mu   sync.Mutex
	got  []forwarded
	fail error
}

func (f *recordingForwarder) Forward(_ context.Context, kind event.Kind, raw json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, forwarded{kind: kind, raw: string(raw)})
	return nil
}

type stubFeed struct {
	userID string
	limit  int
	acts   []model.Activity
	err    error
}

func (s *stubFeed) Recent(_ context.Context, userID string, limit int) ([]model.Activity, error) {
	s.userID, s.limit = userID, limit
	return s.acts, s.err
}

const serviceToken = "svc-secret"

type restFixture struct {
	srv       *httptest.Server
	hub       *registry.Hub
	forwarder *recordingForwarder
	feed      *stubFeed
	token     string
}

func newRESTFixture(t *testing.T) *restFixture {
	t.Helper()

	verifier := jwt.NewVerifier("test-secret", "")
	token, err := verifier.Issue(model.Identity{UserID: "u1", Username: "alice"}, time.Hour)
	require.NoError(t, err)

	hub := registry.NewHub()
	t.Cleanup(hub.Shutdown)

	f := &restFixture{
		hub:       hub,
		forwarder: &recordingForwarder{},
		feed:      &stubFeed{},
		token:     token,
	}
	h := NewRESTHandler(hub, f.forwarder, f.feed, verifier, serviceToken, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	h.Routes(r, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *restFixture) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if raw, _ := io.ReadAll(resp.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func TestREST_HealthAndWSMount(t *testing.T) {
	f := newRESTFixture(t)

	resp, body := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = f.do(t, http.MethodGet, "/ws", "", "")
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestREST_Stats(t *testing.T) {
	f := newRESTFixture(t)
	conn := f.hub.Connect(context.Background(), "test")
	require.True(t, f.hub.Authenticate(conn.GetID(), "u1", "alice"))

	resp, body := f.do(t, http.MethodGet, "/api/v1/stats", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total_connections"])
	assert.EqualValues(t, 1, body["authenticated_connections"])
	assert.EqualValues(t, 1, body["total_users"])
}

func TestREST_AuthRequired(t *testing.T) {
	f := newRESTFixture(t)

	cases := map[string]string{
		"missing": "",
		"garbage": "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodGet, "/api/v1/activities", token, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "auth", body["kind"])
		})
	}
}

func TestREST_IngestRequiresServiceCredential(t *testing.T) {
	f := newRESTFixture(t)
	forged := `{"type":"dm","from":"u9","fromUsername":"admin","to":"u2","message":"click here"}`

	resp, body := f.do(t, http.MethodPost, "/api/v1/events/new_message", "", forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "auth", body["kind"])

	// A valid end-user token is not a service credential.
	resp, body = f.do(t, http.MethodPost, "/api/v1/events/new_message", f.token, forged)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "service credential required", body["error"])

	resp, _ = f.do(t, http.MethodPost, "/api/v1/events/activity", "svc-secre", `{}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Empty(t, f.forwarder.got)
}

func TestREST_IngestDisabledWithoutServiceToken(t *testing.T) {
	fwd := &recordingForwarder{}
	h := NewRESTHandler(registry.NewHub(), fwd, &stubFeed{}, jwt.NewVerifier("s", ""), "",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Routes(r, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/activity", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/events/activity", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer anything")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, fwd.got)
}

func TestREST_Activities(t *testing.T) {
	f := newRESTFixture(t)
	f.feed.acts = []model.Activity{{ID: "a1", Kind: model.ActivityUserSignup, Title: "hello"}}

	resp, body := f.do(t, http.MethodGet, "/api/v1/activities?limit=500", f.token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", f.feed.userID)
	assert.Equal(t, MaxFeedLimit, f.feed.limit)
	acts := body["activities"].([]any)
	require.Len(t, acts, 1)
	assert.Equal(t, "a1", acts[0].(map[string]any)["id"])

	resp, _ = f.do(t, http.MethodGet, "/api/v1/activities?limit=zero", f.token, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.feed.acts = nil
	resp, body = f.do(t, http.MethodGet, "/api/v1/activities", f.token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, DefaultFeedLimit, f.feed.limit)
	assert.Empty(t, body["activities"])
	assert.NotNil(t, body["activities"])

	f.feed.err = model.NewPersistenceError("store unavailable", assert.AnError)
	resp, body = f.do(t, http.MethodGet, "/api/v1/activities", f.token, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "store unavailable", body["error"])
}

func TestREST_IngestForwardsEvents(t *testing.T) {
	f := newRESTFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/v1/events/activity", serviceToken, `{"id":"a1","type":"user_signup"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", body["status"])

	resp, _ = f.do(t, http.MethodPost, "/api/v1/events/new_message", serviceToken, `{"type":"dm","from":"u1","to":"u2","message":"hi"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, f.forwarder.got, 2)
	assert.Equal(t, event.KindActivity, f.forwarder.got[0].kind)
	assert.JSONEq(t, `{"id":"a1","type":"user_signup"}`, f.forwarder.got[0].raw)
	assert.Equal(t, event.KindNewMessage, f.forwarder.got[1].kind)
}

func TestREST_IngestRejections(t *testing.T) {
	f := newRESTFixture(t)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown kind", "/api/v1/events/bogus", `{}`, http.StatusNotFound},
		{"not json", "/api/v1/events/activity", `nope`, http.StatusBadRequest},
		{"not an object", "/api/v1/events/activity", `"text"`, http.StatusBadRequest},
		{"no recipient", "/api/v1/events/new_message", `{"from":"u1"}`, http.StatusBadRequest},
		{"too large", "/api/v1/events/activity", `{"title":"` + strings.Repeat("x", MaxEventBody) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodPost, tc.path, serviceToken, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
	assert.Empty(t, f.forwarder.got)

	f.forwarder.fail = assert.AnError
	resp, _ := f.do(t, http.MethodPost, "/api/v1/events/activity", serviceToken, `{}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
