package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/gencohq/genco/pkg/auth"
	"github.com/gencohq/genco/pkg/config"
	"github.com/gencohq/genco/pkg/keyring"
	"github.com/gencohq/genco/pkg/kv"
	"github.com/gencohq/genco/pkg/preset"
	"github.com/gencohq/genco/pkg/provider"
)

const storeUnboundMsg = "No key-value store bound; set redis_addr or key_store_path to persist keys"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("AI Backend OK"))
}

type completionRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
}

// handleCompletion serves both /ai/summarize and /ai/generate; the two
// routes share semantics and differ only in the client's intent.
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Provider) == "" || strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing parameters: provider and prompt are required")
		return
	}

	adapter, ok := s.registry.Get(req.Provider)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "Unsupported provider: "+req.Provider)
		return
	}

	res := s.resolver.Resolve(r.Context(), req.Provider, req.APIKey, r.Header.Get("Origin"))
	switch res.Source {
	case keyring.SourceClientNotAllowed:
		s.writeError(w, r, http.StatusBadRequest, "Client-supplied API keys are not allowed")
		return
	case keyring.SourceKVError:
		s.writeError(w, r, http.StatusInternalServerError, "Error reading keys from KV")
		return
	}
	if res.Key == "" {
		s.writeJSON(w, r, http.StatusInternalServerError, map[string]any{
			"error":  "Missing API key for provider on server (env or KV)",
			"source": res.Source,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProviderTimeout())
	defer cancel()
	text, err := adapter.Complete(ctx, res.Key, req.Prompt, req.Model)
	if err != nil {
		msg := providerMessage(err)
		log.Error("provider call failed",
			"route", r.URL.Path, "provider", adapter.Name(),
			"status", providerStatus(err), "err", msg, "body", "[REDACTED]")
		if provider.Classify(msg) == provider.KindRegion {
			s.writeError(w, r, http.StatusInternalServerError,
				"Provider rejected request due to country/region restriction. Check API key application restrictions and provider account region.")
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, msg)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"result": text})
}

// handleModels lists a provider's models. The key here resolves differently
// from completions: a caller-supplied key is always accepted (the route leaks
// nothing and is meant for key debugging), falling back to AI_API_KEY and
// then the provider-specific variable.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	var providerName, clientKey string
	if r.Method == http.MethodPost {
		var req struct {
			Provider string `json:"provider"`
			APIKey   string `json:"apiKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		providerName, clientKey = req.Provider, req.APIKey
	} else {
		providerName = r.URL.Query().Get("provider")
		clientKey = r.URL.Query().Get("apiKey")
	}

	if strings.TrimSpace(providerName) == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing parameters: provider is required")
		return
	}

	adapter, ok := s.registry.Get(providerName)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "Unsupported provider: "+providerName)
		return
	}

	apiKey := strings.TrimSpace(clientKey)
	if apiKey == "" {
		apiKey = s.cfg.Env("AI_API_KEY")
	}
	if apiKey == "" {
		apiKey = s.cfg.Env("AI_API_KEY_" + strings.ToUpper(strings.TrimSpace(providerName)))
	}
	if apiKey == "" {
		s.writeError(w, r, http.StatusBadRequest,
			"Missing API key. Provide apiKey in body/query or set AI_API_KEY / AI_API_KEY_<PROVIDER> in server env")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProviderTimeout())
	defer cancel()
	models, err := adapter.ListModels(ctx, apiKey)
	if err != nil {
		msg := providerMessage(err)
		log.Error("model listing failed", "provider", adapter.Name(), "status", providerStatus(err), "err", msg)
		switch provider.Classify(msg) {
		case provider.KindAuth:
			s.writeError(w, r, http.StatusInternalServerError, "Invalid API key: "+msg)
		case provider.KindRateLimit:
			s.writeError(w, r, http.StatusTooManyRequests, "Rate limit exceeded: "+msg)
		default:
			s.writeError(w, r, http.StatusInternalServerError, msg)
		}
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"provider": adapter.Name(), "models": models})
}

func (s *Server) handleSaveKey(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req struct {
		Provider string `json:"provider"`
		APIKey   string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Provider) == "" || strings.TrimSpace(req.APIKey) == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing provider or apiKey")
		return
	}
	if s.store == nil {
		s.writeError(w, r, http.StatusInternalServerError, storeUnboundMsg)
		return
	}
	if err := s.store.Put(r.Context(), keyring.KVKey(req.Provider), req.APIKey); err != nil {
		log.Error("save key failed", "provider", req.Provider, "err", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to persist key")
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "kvBound": true})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	providerName := r.URL.Query().Get("provider")
	if strings.TrimSpace(providerName) == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing provider")
		return
	}
	wantFull := strings.EqualFold(r.URL.Query().Get("full"), "true")

	var value string
	if s.store != nil {
		stored, err := s.store.Get(r.Context(), keyring.KVKey(providerName))
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			s.writeError(w, r, http.StatusInternalServerError, "Error reading keys from KV")
			return
		}
		value = stored
	} else {
		value = s.cfg.Env("AI_API_KEY_" + strings.ToUpper(strings.TrimSpace(providerName)))
		if value == "" {
			value = s.cfg.Env("AI_API_KEY")
		}
	}

	if wantFull {
		// Full keys only leave the server for authenticated callers.
		if !s.authorized(r) {
			s.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		s.writeJSON(w, r, http.StatusOK, map[string]any{"provider": providerName, "apiKey": nullable(value)})
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"provider": providerName, "apiKey": nullable(keyring.Mask(value))})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	providerName := r.URL.Query().Get("provider")
	if strings.TrimSpace(providerName) == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing provider")
		return
	}
	if s.store == nil {
		s.writeError(w, r, http.StatusInternalServerError, storeUnboundMsg)
		return
	}
	if !s.authorized(r) {
		s.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := s.store.Delete(r.Context(), keyring.KVKey(providerName)); err != nil {
		log.Error("delete key failed", "provider", providerName, "err", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to delete key")
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
}

// handleDebug reports runtime wiring without exposing any secret values.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	interesting := []string{"AI_API_KEY", "ADMIN_JWT_SECRET", "JWT_SECRET", "ADMIN_API_TOKEN", "ALLOWED_ORIGINS"}
	for _, p := range config.KnownProviders {
		interesting = append(interesting, "AI_API_KEY_"+strings.ToUpper(p))
	}
	bindingKeys := make([]string, 0, len(interesting))
	for _, name := range interesting {
		if s.cfg.Env(name) != "" {
			bindingKeys = append(bindingKeys, name)
		}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"ok":           true,
		"kvBound":      s.store != nil,
		"providerKeys": map[string]bool{"AI_API_KEY": s.cfg.Env("AI_API_KEY") != ""},
		"bindingKeys":  bindingKeys,
	})
}

type keyPresence struct {
	Env bool `json:"env"`
	KV  bool `json:"kv"`
}

// handleKeysCheck reports, per provider, whether a key is present in the
// environment or the key-value store. A failing KV read marks just that
// provider absent instead of failing the whole batch.
func (s *Server) handleKeysCheck(w http.ResponseWriter, r *http.Request) {
	providers := config.KnownProviders
	if raw := strings.TrimSpace(r.URL.Query().Get("providers")); raw != "" {
		providers = nil
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				providers = append(providers, p)
			}
		}
	}

	results := make(map[string]keyPresence, len(providers))
	for _, p := range providers {
		envKey := s.cfg.Env("AI_API_KEY_" + strings.ToUpper(p))
		if envKey == "" {
			envKey = s.cfg.Env("AI_API_KEY")
		}
		presence := keyPresence{Env: envKey != ""}
		if s.store != nil {
			if val, err := s.store.Get(r.Context(), keyring.KVKey(p)); err == nil && val != "" {
				presence.KV = true
			}
		}
		results[p] = presence
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "providers": results})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing username or password")
		return
	}
	if !auth.Authenticate(s.cfg.Env, req.Username, req.Password) {
		s.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	gate := s.gate()
	if gate.SigningSecret == "" {
		s.writeError(w, r, http.StatusInternalServerError,
			"Signing secret not configured (ADMIN_JWT_SECRET or JWT_SECRET required)")
		return
	}
	token, err := gate.Issue(req.Username)
	if err != nil {
		log.Error("token issuance failed", "err", err)
		s.writeError(w, r, http.StatusInternalServerError, "Token issuance failed")
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "token": token})
}

// Logout is idempotent; tokens expire on their own and clients just drop
// their stored copy.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	defaults := preset.Defaults()
	if s.store == nil {
		s.writeJSON(w, r, http.StatusOK, map[string]any{"presets": map[string]any{}, "defaults": defaults})
		return
	}
	presets, err := s.presets.Load(r.Context())
	if err != nil {
		log.Error("load presets failed", "err", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to load presets")
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"presets": presets, "defaults": defaults})
}

func (s *Server) handleSavePresets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserPresets map[string]json.RawMessage `json:"userPresets"`
		Presets     map[string]json.RawMessage `json:"presets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	userPresets := req.UserPresets
	if userPresets == nil {
		userPresets = req.Presets
	}
	if userPresets == nil {
		userPresets = map[string]json.RawMessage{}
	}
	if s.store == nil {
		s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if !s.authorized(r) {
		s.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := s.presets.Save(r.Context(), userPresets); err != nil {
		log.Error("save presets failed", "err", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to save presets")
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if decoded, err := url.PathUnescape(key); err == nil {
		key = decoded
	}
	if strings.TrimSpace(key) == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing preset key")
		return
	}
	if s.store == nil {
		s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if !s.authorized(r) {
		s.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	err := s.presets.Delete(r.Context(), key)
	switch {
	case errors.Is(err, preset.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "Preset not found")
	case err != nil:
		log.Error("delete preset failed", "key", key, "err", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to delete preset")
	default:
		s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
	}
}

func providerMessage(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}

func providerStatus(err error) int {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.StatusCode
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
