// Package provider translates generic completion and model-listing requests
// into each upstream vendor's wire format and normalizes the responses. The
// per-provider JSON paths are the whole reason this layer exists; everything
// shared lives in the registry and the typed Error.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

type Pricing struct {
	Prompt     string `json:"prompt,omitempty"`
	Completion string `json:"completion,omitempty"`
}

// Model is the normalized model descriptor. Providers fill different subsets;
// omitempty keeps each provider's listing close to its native shape.
type Model struct {
	ID                         string   `json:"id,omitempty"`
	Name                       string   `json:"name,omitempty"`
	DisplayName                string   `json:"display_name,omitempty"`
	Description                string   `json:"description,omitempty"`
	OwnedBy                    string   `json:"owned_by,omitempty"`
	ContextLength              int      `json:"context_length,omitempty"`
	Type                       string   `json:"type,omitempty"`
	Endpoints                  []string `json:"endpoints,omitempty"`
	Pricing                    *Pricing `json:"pricing,omitempty"`
	IsFree                     *bool    `json:"is_free,omitempty"`
	SupportedGenerationMethods []string `json:"supported_generation_methods,omitempty"`
}

type Adapter interface {
	Name() string
	// Complete must fail before any network call when apiKey is empty, and
	// must treat an upstream success with empty text as a failure.
	Complete(ctx context.Context, apiKey, prompt, model string) (string, error)
	ListModels(ctx context.Context, apiKey string) ([]Model, error)
}

// Error carries the three fields the router needs for actionable diagnostics
// without leaking credentials: provider name, upstream status, and the most
// specific message the provider's error envelope offered.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (upstream status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type Options struct {
	// Timeout bounds each outbound provider call. Zero means 90s.
	Timeout time.Duration

	// BaseURLs overrides provider endpoints by name, used by tests to point
	// adapters at local servers.
	BaseURLs map[string]string

	// HTTPClient overrides the shared client; nil builds one from Timeout.
	HTTPClient *http.Client
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(opts Options) *Registry {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	base := func(name, fallback string) string {
		if u, ok := opts.BaseURLs[name]; ok && strings.TrimSpace(u) != "" {
			return strings.TrimRight(u, "/")
		}
		return fallback
	}

	r := &Registry{adapters: map[string]Adapter{}}
	r.add(newGemini(client, base("gemini", "https://generativelanguage.googleapis.com")))
	r.add(newCohere(client, base("cohere", "https://api.cohere.com")))
	r.add(newOpenAI(client, base("openai", "https://api.openai.com/v1")))
	r.add(newOpenRouter(client, base("openrouter", "https://openrouter.ai/api/v1")))
	r.add(newGroq(client, base("groq", "https://api.groq.com/openai/v1")))
	r.add(newTogether(client, base("together", "https://api.together.xyz/v1")))
	r.add(newHuggingFace(client, base("huggingface", "https://router.huggingface.co/v1")))
	r.add(newDeepSeek(client, base("deepseek", "https://api.deepseek.com/v1")))
	return r
}

func (r *Registry) add(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get looks an adapter up by provider name. A miss is the single
// "unsupported provider" path for the router.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func requireKey(provider, displayName, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return &Error{Provider: provider, Message: "missing " + displayName + " API key"}
	}
	return nil
}

func sortModelsByID(models []Model) {
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
}

func boolPtr(b bool) *bool { return &b }
