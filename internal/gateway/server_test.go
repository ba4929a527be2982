package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chathub/chathub/internal/config"
	"github.com/chathub/chathub/internal/provider"
	"github.com/chathub/chathub/internal/provider/webchat"
)

// echoProvider answers every message with a fixed prefix. Streaming splits
// the reply into word chunks.
type echoProvider struct {
	name     string
	healthy  bool
	resets   int
	failWith error
}

func (e *echoProvider) Name() string                        { return e.name }
func (e *echoProvider) Kind() provider.Kind                 { return provider.KindAPI }
func (e *echoProvider) Init(ctx context.Context) error      { return nil }
func (e *echoProvider) Healthy(ctx context.Context) bool    { return e.healthy }
func (e *echoProvider) Close() error                        { return nil }
func (e *echoProvider) NewChat(ctx context.Context) error   { e.resets++; return nil }
func (e *echoProvider) Models(ctx context.Context) ([]string, error) {
	return []string{e.name + "-model"}, nil
}

func (e *echoProvider) Send(ctx context.Context, msg string, history []provider.Message) (*provider.Response, error) {
	if e.failWith != nil {
		return nil, e.failWith
	}
	return &provider.Response{Content: "echo: " + msg, Provider: e.name, Model: e.name + "-model"}, nil
}

func (e *echoProvider) Stream(ctx context.Context, msg string, history []provider.Message, onDelta provider.DeltaFunc) error {
	if e.failWith != nil {
		return e.failWith
	}
	for _, part := range []string{"echo:", " ", msg} {
		onDelta(part)
	}
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Gateway.Bind = "127.0.0.1"
	cfg.Gateway.Port = 0
	cfg.Session.TTLSeconds = 3600

	s := New(cfg)
	if err := s.registry.Register(&echoProvider{name: "stub", healthy: true}, true); err != nil {
		t.Fatalf("register stub provider: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() == 0 {
		t.Error("health body is empty")
	}
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Errorf("root status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "ChatHub") {
		t.Errorf("root body missing service name: %s", rec.Body.String())
	}
}

func TestChatCompletions(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/chat/completions", `{"message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Response != "echo: hello" {
		t.Errorf("response = %q, want %q", resp.Response, "echo: hello")
	}
	if resp.Provider != "stub" {
		t.Errorf("provider = %q, want stub", resp.Provider)
	}
	if resp.SessionID == "" {
		t.Error("sessionId is empty")
	}
}

func TestChatCompletionsSessionReuse(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/chat/completions", `{"message":"one"}`)
	var first ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/chat/completions", `{"message":"two","sessionId":"`+first.SessionID+`"}`)
	var second ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session not reused: %q != %q", second.SessionID, first.SessionID)
	}
}

func TestChatCompletionsValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/chat/completions", `{"provider":"stub"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestChatCompletionsUnknownProvider(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/chat/completions", `{"message":"hi","provider":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestChatCompletionsProviderErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{provider.ErrRateLimited, http.StatusTooManyRequests},
		{provider.ErrLoginRequired, http.StatusServiceUnavailable},
		{provider.ErrNotInitialized, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		s := newTestServer(t)
		if err := s.registry.Register(&echoProvider{name: "failing", failWith: tc.err}, false); err != nil {
			t.Fatalf("register: %v", err)
		}

		rec := doJSON(t, s, http.MethodPost, "/v1/chat/completions", `{"message":"hi","provider":"failing"}`)
		if rec.Code != tc.want {
			t.Errorf("error %v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestChatStream(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/chat/stream", `{"message":"world"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("stream status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content type = %q, want event stream", ct)
	}
	if rec.Header().Get("X-Session-Id") == "" {
		t.Error("missing X-Session-Id header")
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"delta":"echo:"`) {
		t.Errorf("missing first delta in body: %s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Errorf("stream missing [DONE] terminator: %s", body)
	}
}

func TestNewChat(t *testing.T) {
	s := newTestServer(t)
	p := &echoProvider{name: "web", healthy: true}
	if err := s.registry.Register(p, false); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := doJSON(t, s, http.MethodPost, "/v1/chat/new", `{"provider":"web"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("new chat status = %d, body %s", rec.Code, rec.Body.String())
	}
	if p.resets != 1 {
		t.Errorf("resets = %d, want 1", p.resets)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["sessionId"] == "" {
		t.Error("missing sessionId in new chat response")
	}
}

func TestListProviders(t *testing.T) {
	s := newTestServer(t)
	s.refreshHealth()

	rec := doJSON(t, s, http.MethodGet, "/v1/providers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("providers status = %d", rec.Code)
	}

	var resp struct {
		Providers []struct {
			Name    string `json:"name"`
			Kind    string `json:"kind"`
			Default bool   `json:"default"`
			Healthy bool   `json:"healthy"`
		} `json:"providers"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || len(resp.Providers) != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	p := resp.Providers[0]
	if p.Name != "stub" || !p.Default || !p.Healthy {
		t.Errorf("unexpected provider entry: %+v", p)
	}
}

func TestModels(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("models status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stub-model") {
		t.Errorf("models body missing stub-model: %s", rec.Body.String())
	}
}

func TestAddCustomProviderValidation(t *testing.T) {
	s := newTestServer(t)

	// Selectors are required.
	rec := doJSON(t, s, http.MethodPost, "/v1/providers/custom", `{"name":"x","baseUrl":"https://chat.example.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRemoveProvider(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodDelete, "/v1/providers/stub", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/v1/providers/stub", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["running"] != false {
		t.Errorf("running = %v, want false", resp["running"])
	}
	if _, ok := resp["sessions"]; !ok {
		t.Error("status missing sessions block")
	}
}

func TestSessionsEndpoints(t *testing.T) {
	s := newTestServer(t)
	sess := s.sessions.Create("stub")

	rec := doJSON(t, s, http.MethodGet, "/api/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), sess.ID) {
		t.Errorf("sessions body missing %s", sess.ID)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/sessions/"+sess.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete session status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/sessions/"+sess.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing session status = %d, want 404", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{}
	cfg.Gateway.Auth.Token = "secret"
	cfg.Session.TTLSeconds = 60
	s := New(cfg)
	if err := s.registry.Register(&echoProvider{name: "stub", healthy: true}, true); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Health stays open.
	rec := doJSON(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health with auth enabled = %d, want 200", rec.Code)
	}

	// API requires the token.
	rec = doJSON(t, s, http.MethodGet, "/v1/providers", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", rec.Code)
	}
}

func TestServerNew(t *testing.T) {
	cfg := &config.Config{}
	cfg.Gateway.Bind = "0.0.0.0"
	cfg.Gateway.Port = 8090

	s := New(cfg)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.IsRunning() {
		t.Error("New() server should not be running")
	}
	if s.Uptime() != 0 {
		t.Error("Uptime() should be zero before start")
	}
}

func TestResolveSessionExpiredIDGetsFresh(t *testing.T) {
	s := newTestServer(t)

	sess := s.resolveSession("gone", "stub")
	if sess.ID == "gone" {
		t.Error("expired id must not be reused")
	}
	if sess.Provider != "stub" {
		t.Errorf("provider = %q, want stub", sess.Provider)
	}

	again := s.resolveSession(sess.ID, "stub")
	if again.ID != sess.ID {
		t.Error("live session should be reused")
	}
}

func TestResolveProfileDefaultsToProviderName(t *testing.T) {
	pc := config.ProviderConfig{Type: config.ProviderTypeWeb}

	prof, err := resolveProfile("claude", pc, map[string]webchat.Profile{})
	if err != nil {
		t.Fatalf("resolveProfile: %v", err)
	}
	if prof.Name != "claude" {
		t.Errorf("profile name = %q, want claude", prof.Name)
	}
	if prof.BaseURL == "" {
		t.Error("builtin profile should carry a base URL")
	}

	if _, err := resolveProfile("nosuchsite", pc, map[string]webchat.Profile{}); err == nil {
		t.Error("unknown profile name should fail")
	}
}

func TestHealthSnapshotRefresh(t *testing.T) {
	s := newTestServer(t)

	if len(s.healthSnapshot()) != 0 {
		t.Error("health cache should start empty")
	}

	s.refreshHealth()
	deadline := time.Now().Add(time.Second)
	for len(s.healthSnapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if healthy, ok := s.healthSnapshot()["stub"]; !ok || !healthy {
		t.Errorf("health cache = %v, want stub healthy", s.healthSnapshot())
	}
}
