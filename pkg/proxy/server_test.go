package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/gencohq/genco/pkg/auth"
	"github.com/gencohq/genco/pkg/config"
	"github.com/gencohq/genco/pkg/provider"
)

func newTestServer(t *testing.T, env map[string]string) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.NewDefault()
	cfg.RedisAddr = mr.Addr()
	cfg.LookupEnv = func(name string) string { return env[name] }
	cfg.Normalize()
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() {
		if s.closeStore != nil {
			_ = s.closeStore()
		}
	})
	return s
}

func doRequest(t *testing.T, s *Server, method, target, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

const adminToken = "test-admin-token"

func adminEnv(extra map[string]string) map[string]string {
	env := map[string]string{"ADMIN_API_TOKEN": adminToken}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func TestRootBanner(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "AI Backend OK" {
		t.Fatalf("unexpected root response: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected permissive CORS with no allowlist")
	}
}

func TestSaveKeyGetKeyRoundTrip(t *testing.T) {
	s := newTestServer(t, adminEnv(nil))

	rec := doRequest(t, s, http.MethodPost, "/ai/save-key", adminToken,
		`{"provider":"gemini","apiKey":"abc123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save-key: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["ok"] != true || body["kvBound"] != true {
		t.Fatalf("unexpected save-key body %v", body)
	}

	// Default read is masked and needs no auth.
	rec = doRequest(t, s, http.MethodGet, "/ai/get-key?provider=gemini", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get-key: %d %s", rec.Code, rec.Body.String())
	}
	if body = decodeBody(t, rec); body["apiKey"] != "abc1..." {
		t.Fatalf("expected masked key, got %v", body)
	}

	// Full read requires auth.
	rec = doRequest(t, s, http.MethodGet, "/ai/get-key?provider=gemini&full=true", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated full read, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/ai/get-key?provider=gemini&full=true", adminToken, "")
	if body = decodeBody(t, rec); body["apiKey"] != "abc123" {
		t.Fatalf("expected full key, got %v", body)
	}

	// Absent providers report null.
	rec = doRequest(t, s, http.MethodGet, "/ai/get-key?provider=openai", "", "")
	if body = decodeBody(t, rec); body["apiKey"] != nil {
		t.Fatalf("expected null key for unset provider, got %v", body)
	}
}

func TestDeleteKey(t *testing.T) {
	s := newTestServer(t, adminEnv(nil))
	doRequest(t, s, http.MethodPost, "/ai/save-key", adminToken, `{"provider":"groq","apiKey":"gk-1"}`)

	if rec := doRequest(t, s, http.MethodDelete, "/ai/delete-key?provider=groq", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodDelete, "/ai/delete-key?provider=groq", adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete-key: %d %s", rec.Code, rec.Body.String())
	}
	rec := doRequest(t, s, http.MethodGet, "/ai/get-key?provider=groq", "", "")
	if body := decodeBody(t, rec); body["apiKey"] != nil {
		t.Fatalf("expected key gone after delete, got %v", body)
	}
}

func TestCompletionAuthAndValidation(t *testing.T) {
	s := newTestServer(t, adminEnv(nil))

	if rec := doRequest(t, s, http.MethodPost, "/ai/summarize", "", `{"provider":"openai","prompt":"hi"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec := doRequest(t, s, http.MethodPost, "/ai/summarize", adminToken, `{"provider":"openai"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing prompt, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPost, "/ai/generate", adminToken, `{"provider":"unknown-provider","prompt":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown provider, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); !strings.Contains(body["error"].(string), "unknown-provider") {
		t.Fatalf("expected error to name the provider, got %v", body)
	}
}

func TestCompletionHappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer env-key" {
			t.Errorf("expected env key to reach upstream, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hasil"}}]}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, adminEnv(map[string]string{"OPENAI_API_KEY": "env-key"}))
	s.registry = provider.NewRegistry(provider.Options{BaseURLs: map[string]string{"openai": upstream.URL}})

	rec := doRequest(t, s, http.MethodPost, "/ai/summarize", adminToken, `{"provider":"openai","prompt":"ringkas"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("summarize: %d %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["result"] != "hasil" {
		t.Fatalf("unexpected result %v", body)
	}
}

func TestCompletionMissingKey(t *testing.T) {
	s := newTestServer(t, adminEnv(nil))
	rec := doRequest(t, s, http.MethodPost, "/ai/summarize", adminToken, `{"provider":"openai","prompt":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for missing key, got %d %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["source"] != "not-found" {
		t.Fatalf("expected not-found source tag, got %v", body)
	}
}

func TestCompletionClientKeyRejectedFromPublicOrigin(t *testing.T) {
	s := newTestServer(t, adminEnv(nil))
	req := httptest.NewRequest(http.MethodPost, "/ai/summarize",
		strings.NewReader(`{"provider":"openai","prompt":"hi","apiKey":"sk-client"}`))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for client key from public origin, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); !strings.Contains(body["error"].(string), "not allowed") {
		t.Fatalf("unexpected error %v", body)
	}
}

func TestCompletionRegionHint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"User location country not supported"}}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, adminEnv(map[string]string{"AI_API_KEY_GROQ": "gk"}))
	s.registry = provider.NewRegistry(provider.Options{BaseURLs: map[string]string{"groq": upstream.URL}})

	rec := doRequest(t, s, http.MethodPost, "/ai/generate", adminToken, `{"provider":"groq","prompt":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); !strings.Contains(body["error"].(string), "country/region restriction") {
		t.Fatalf("expected region hint, got %v", body)
	}
}

func TestModelsEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"m1","owned_by":"org"}]}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, nil)
	s.registry = provider.NewRegistry(provider.Options{BaseURLs: map[string]string{"openai": upstream.URL}})

	// No provider.
	if rec := doRequest(t, s, http.MethodGet, "/ai/models", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without provider, got %d", rec.Code)
	}
	// No key anywhere.
	if rec := doRequest(t, s, http.MethodGet, "/ai/models?provider=openai", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", rec.Code)
	}
	// Client key via POST body.
	rec := doRequest(t, s, http.MethodPost, "/ai/models", "", `{"provider":"openai","apiKey":"sk-x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("models: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["provider"] != "openai" {
		t.Fatalf("unexpected provider %v", body)
	}
	models, ok := body["models"].([]any)
	if !ok || len(models) != 1 {
		t.Fatalf("unexpected models %v", body)
	}
}

func TestModelsRateLimitMapsTo429(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit reached for requests"}}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, nil)
	s.registry = provider.NewRegistry(provider.Options{BaseURLs: map[string]string{"deepseek": upstream.URL}})

	rec := doRequest(t, s, http.MethodPost, "/ai/models", "", `{"provider":"deepseek","apiKey":"sk-x"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); !strings.HasPrefix(body["error"].(string), "Rate limit exceeded:") {
		t.Fatalf("unexpected error %v", body)
	}
}

func TestCORSPreflightAndAllowlist(t *testing.T) {
	env := map[string]string{"ALLOWED_ORIGINS": "https://app.example.com"}
	s := newTestServer(t, env)

	req := httptest.NewRequest(http.MethodOptions, "/ai/summarize", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected origin echoed, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials header for allowed origin")
	}

	// Same hostname, different port still matches.
	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com:8443")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com:8443" {
		t.Fatalf("expected hostname match to pass, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	// Unknown public origin is rejected with "null".
	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://other.example.net")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "null" {
		t.Fatalf("expected null origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	// Localhost passes even when not listed.
	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("expected localhost allowed, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestLoginFlow(t *testing.T) {
	env := map[string]string{
		"LOGIN_USERS":      "admin:s3cret",
		"ADMIN_JWT_SECRET": "signing-secret",
	}
	s := newTestServer(t, env)

	if rec := doRequest(t, s, http.MethodPost, "/auth/login", "", `{"username":"admin"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/auth/login", "", `{"username":"admin","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", rec.Code)
	}

	rec := doRequest(t, s, http.MethodPost, "/auth/login", "", `{"username":"admin","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatal("expected token in login response")
	}
	gate := auth.Gate{SigningSecret: "signing-secret"}
	if !gate.Verify(token) {
		t.Fatal("expected issued token to verify")
	}

	// The issued token is accepted on privileged routes.
	rec = doRequest(t, s, http.MethodPost, "/ai/save-key", token, `{"provider":"gemini","apiKey":"k"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected JWT to authorize save-key, got %d %s", rec.Code, rec.Body.String())
	}

	if rec := doRequest(t, s, http.MethodPost, "/auth/logout", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
}

func TestLoginWithoutSigningSecret(t *testing.T) {
	s := newTestServer(t, map[string]string{"LOGIN_USERS": "admin:pw"})
	rec := doRequest(t, s, http.MethodPost, "/auth/login", "", `{"username":"admin","password":"pw"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without signing secret, got %d", rec.Code)
	}
}

func TestPresetLifecycle(t *testing.T) {
	s := newTestServer(t, adminEnv(nil))

	rec := doRequest(t, s, http.MethodGet, "/presets", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list presets: %d", rec.Code)
	}
	body := decodeBody(t, rec)
	defaults, ok := body["defaults"].(map[string]any)
	if !ok || len(defaults) != 6 {
		t.Fatalf("expected 6 defaults, got %v", body["defaults"])
	}

	if rec := doRequest(t, s, http.MethodPost, "/presets", "", `{"presets":{"Mine":{"label":"Mine"}}}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated save, got %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/presets", adminToken, `{"presets":{"Mine":{"label":"Mine"}}}`); rec.Code != http.StatusOK {
		t.Fatalf("save presets: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/presets", "", "")
	body = decodeBody(t, rec)
	presets, _ := body["presets"].(map[string]any)
	if _, ok := presets["Mine"]; !ok {
		t.Fatalf("expected saved preset visible, got %v", body["presets"])
	}

	if rec := doRequest(t, s, http.MethodDelete, "/presets/Nope", adminToken, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown preset, got %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodDelete, "/presets/Mine", adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete preset: %d %s", rec.Code, rec.Body.String())
	}
}

func TestKeysCheck(t *testing.T) {
	s := newTestServer(t, adminEnv(map[string]string{"AI_API_KEY_GEMINI": "g"}))
	doRequest(t, s, http.MethodPost, "/ai/save-key", adminToken, `{"provider":"cohere","apiKey":"c"}`)

	rec := doRequest(t, s, http.MethodGet, "/ai/keys-check?providers=gemini,cohere,openai", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("keys-check: %d", rec.Code)
	}
	body := decodeBody(t, rec)
	providers := body["providers"].(map[string]any)
	gemini := providers["gemini"].(map[string]any)
	cohereRes := providers["cohere"].(map[string]any)
	openaiRes := providers["openai"].(map[string]any)
	if gemini["env"] != true || gemini["kv"] != false {
		t.Fatalf("unexpected gemini presence %v", gemini)
	}
	if cohereRes["env"] != false || cohereRes["kv"] != true {
		t.Fatalf("unexpected cohere presence %v", cohereRes)
	}
	if openaiRes["env"] != false || openaiRes["kv"] != false {
		t.Fatalf("unexpected openai presence %v", openaiRes)
	}
}

func TestDebugEndpoint(t *testing.T) {
	s := newTestServer(t, map[string]string{"AI_API_KEY": "global"})
	rec := doRequest(t, s, http.MethodGet, "/ai/debug", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("debug: %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["kvBound"] != true {
		t.Fatalf("expected kvBound true, got %v", body)
	}
	keys := body["providerKeys"].(map[string]any)
	if keys["AI_API_KEY"] != true {
		t.Fatalf("expected AI_API_KEY reported present, got %v", body)
	}
}
