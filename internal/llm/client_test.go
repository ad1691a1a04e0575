package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"aigc-bridge/internal/auth"
)

type stubTokens struct {
	token string
	err   error
	calls int
}

func (s *stubTokens) AccessToken(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func closeClient(c Client) {
	if closer, ok := c.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]json.RawMessage {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	return out
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Backend: "grpc"}, &stubTokens{}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected validation error for unknown backend, got nil")
	}

	_, err = NewClient(Config{}, nil, zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected error for missing token source, got nil")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := (&Config{}).WithDefaults()
	if cfg.Backend != BackendOAuth {
		t.Errorf("Backend = %s, want %s", cfg.Backend, BackendOAuth)
	}
	if cfg.APIURL != DefaultOAuthURL {
		t.Errorf("APIURL = %s, want %s", cfg.APIURL, DefaultOAuthURL)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %s, want %s", cfg.Model, DefaultModel)
	}
	if cfg.Temperature == nil || *cfg.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", cfg.Temperature, DefaultTemperature)
	}

	alt := (&Config{Backend: BackendAPIKey}).WithDefaults()
	if alt.APIURL != DefaultAPIKeyURL {
		t.Errorf("apikey APIURL = %s, want %s", alt.APIURL, DefaultAPIKeyURL)
	}

	zero := (&Config{Temperature: floatPtr(0)}).WithDefaults()
	if *zero.Temperature != 0 {
		t.Errorf("explicit zero temperature must survive defaults, got %v", *zero.Temperature)
	}
}

func TestChatOAuthBackendSuccess(t *testing.T) {
	t.Parallel()

	var gotAuth, gotReqID string
	var gotBody map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/llmservice/api/v1/chat/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		gotBody = decodeBody(t, r)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"msg":"Operation Success","code":200,"data":{"messages":[{"role":"assistant","content":"hi"}]}}`))
	}))
	defer srv.Close()

	tokens := &stubTokens{token: "oauth-token"}
	c, err := NewClient(Config{
		Backend: BackendOAuth,
		APIURL:  srv.URL + "/llmservice/api/v1/chat/messages",
		TopK:    intPtr(40),
		TopP:    floatPtr(0.9),
	}, tokens, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(c)

	raw, err := c.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "ping"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotAuth != "Bearer oauth-token" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if gotReqID == "" {
		t.Fatalf("expected X-Request-ID header")
	}
	if tokens.calls != 1 {
		t.Fatalf("expected one token fetch, got %d", tokens.calls)
	}

	var msgs []Message
	if err := json.Unmarshal(gotBody["messages"], &msgs); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[1].Role != RoleUser {
		t.Fatalf("message order or roles changed: %#v", msgs)
	}
	if string(gotBody["model"]) != `"gpt4o-mini"` {
		t.Fatalf("unexpected model: %s", gotBody["model"])
	}
	if string(gotBody["temperature"]) != "0.1" {
		t.Fatalf("unexpected temperature: %s", gotBody["temperature"])
	}
	if string(gotBody["top_k"]) != "40" || string(gotBody["top_p"]) != "0.9" {
		t.Fatalf("expected sampling knobs, got top_k=%s top_p=%s", gotBody["top_k"], gotBody["top_p"])
	}

	if !strings.Contains(string(raw), `"Operation Success"`) {
		t.Fatalf("raw body not returned: %s", raw)
	}
}

func TestChatAPIKeyBackendOmitsSampling(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody = decodeBody(t, r)

		// Body delivered in chunks; the client must still decode it whole.
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":`))
		flusher.Flush()
		_, _ = w.Write([]byte(`{"role":"assistant","content":"pong"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		Backend: BackendAPIKey,
		APIURL:  srv.URL,
		Model:   "deepseek-ai/DeepSeek-R1-Distill-Llama-70B",
		TopK:    intPtr(5),
		TopP:    floatPtr(0.5),
	}, auth.StaticKey("sk-test"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(c)

	raw, err := c.Chat(context.Background(), &ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: "ping"}},
		Temperature: floatPtr(0.7),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if _, ok := gotBody["top_k"]; ok {
		t.Fatalf("apikey backend must not send top_k")
	}
	if _, ok := gotBody["top_p"]; ok {
		t.Fatalf("apikey backend must not send top_p")
	}
	if string(gotBody["temperature"]) != "0.7" {
		t.Fatalf("per-call temperature override ignored: %s", gotBody["temperature"])
	}
	if !strings.Contains(string(raw), `"pong"`) {
		t.Fatalf("unexpected body: %s", raw)
	}
}

func TestChatHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Backend: BackendAPIKey, APIURL: srv.URL}, auth.StaticKey("k"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(c)

	_, err = c.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})

	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if serr.StatusCode != http.StatusBadGateway || serr.Body != "upstream exploded" {
		t.Fatalf("unexpected status error: %#v", serr)
	}
}

func TestChatTokenErrorSkipsPost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("chat endpoint should not be called without a token")
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIURL: srv.URL}, &stubTokens{err: errors.New("denied")}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(c)

	_, err = c.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err == nil || !strings.Contains(err.Error(), "acquire token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestChatInvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIURL: srv.URL}, &stubTokens{token: "t"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(c)

	_, err = c.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err == nil || !strings.Contains(err.Error(), "decode upstream response") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestChatValidationError(t *testing.T) {
	t.Parallel()

	tokens := &stubTokens{token: "t"}
	c, err := NewClient(Config{APIURL: "http://127.0.0.1:1"}, tokens, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(c)

	_, err = c.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "tool", Content: "x"}}})
	if err == nil || !strings.Contains(err.Error(), "invalid request") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if tokens.calls != 0 {
		t.Fatalf("invalid requests must not fetch a token")
	}
}

func TestChatEmptyHistoryIsPosted(t *testing.T) {
	t.Parallel()

	var hits int
	var messages string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		messages = string(decodeBody(t, r)["messages"])
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIURL: srv.URL}, &stubTokens{token: "t"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(c)

	if _, err := c.Chat(context.Background(), &ChatRequest{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected one upstream call, got %d", hits)
	}
	if messages != "[]" {
		t.Fatalf("messages = %s, want []", messages)
	}
}

func TestTimeoutFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  time.Duration
	}{
		{"gpt4o-mini", 60 * time.Second},
		{"deepseek-ai/DeepSeek-R1-Distill-Llama-70B", 600 * time.Second},
		{"deepseek-ai/DeepSeek-R1", 600 * time.Second},
		{"", 60 * time.Second},
	}

	for _, tt := range tests {
		if got := TimeoutFor(tt.model); got != tt.want {
			t.Errorf("TimeoutFor(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestNewHTTPClientTLS(t *testing.T) {
	t.Parallel()

	secure := NewHTTPClient(Config{}, zaptest.NewLogger(t))
	if secure.Transport.(*http.Transport).TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("certificate verification must be on by default")
	}

	insecure := NewHTTPClient(Config{InsecureSkipVerify: true}, zaptest.NewLogger(t))
	if !insecure.Transport.(*http.Transport).TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("InsecureSkipVerify flag not applied")
	}
}
