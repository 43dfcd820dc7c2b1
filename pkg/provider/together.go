package provider

import (
	"context"
	"net/http"
)

func newTogether(client *http.Client, baseURL string) *openAICompat {
	return &openAICompat{
		name:         "together",
		displayName:  "Together",
		baseURL:      baseURL,
		defaultModel: "meta-llama/Llama-3-70b-chat-hf",
		httpClient:   client,
		list:         listTogether,
	}
}

func listTogether(ctx context.Context, a *openAICompat, apiKey string) ([]Model, error) {
	var out struct {
		Data []struct {
			ID            string `json:"id"`
			DisplayName   string `json:"display_name"`
			ContextLength int    `json:"context_length"`
			Type          string `json:"type"`
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
			Message:    upstreamMessage(body, false, "Together listModels failed"),
		}
	}

	models := make([]Model, 0, len(out.Data))
	for _, m := range out.Data {
		models = append(models, Model{
			ID:            m.ID,
			Name:          m.ID,
			DisplayName:   m.DisplayName,
			ContextLength: m.ContextLength,
			Type:          m.Type,
		})
	}
	sortModelsByID(models)
	return models, nil
}
