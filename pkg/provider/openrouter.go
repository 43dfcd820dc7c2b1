package provider

import (
	"context"
	"net/http"
	"strings"
)

// newOpenRouter builds the OpenRouter adapter. Completions are plain OpenAI
// dialect; the catalog carries pricing, so listing is bespoke and derives an
// is_free flag from zero pricing or the ":free" model id suffix. Catalog
// order is preserved as OpenRouter returns it.
func newOpenRouter(client *http.Client, baseURL string) *openAICompat {
	return &openAICompat{
		name:         "openrouter",
		displayName:  "OpenRouter",
		baseURL:      baseURL,
		defaultModel: "openai/gpt-4o-mini",
		httpClient:   client,
		list:         listOpenRouter,
	}
}

func listOpenRouter(ctx context.Context, a *openAICompat, apiKey string) ([]Model, error) {
	var out struct {
		Data []struct {
			ID            string   `json:"id"`
			Name          string   `json:"name"`
			ContextLength int      `json:"context_length"`
			Pricing       *Pricing `json:"pricing"`
		} `json:"data"`
	}
	status, body, err := doJSON(ctx, a.httpClient, http.MethodGet, a.baseURL+"/models", bearerHeader(apiKey), nil, &out)
	if err != nil {
		return nil, &Error{Provider: a.name, Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return nil, &Error{
			Provider:   a.name,
			StatusCode: status,
			Message:    upstreamMessage(body, false, "OpenRouter listModels failed"),
		}
	}

	models := make([]Model, 0, len(out.Data))
	for _, m := range out.Data {
		free := strings.Contains(m.ID, ":free")
		if m.Pricing != nil && m.Pricing.Prompt == "0" && m.Pricing.Completion == "0" {
			free = true
		}
		models = append(models, Model{
			ID:            m.ID,
			Name:          m.Name,
			ContextLength: m.ContextLength,
			Pricing:       m.Pricing,
			IsFree:        boolPtr(free),
		})
	}
	return models, nil
}
