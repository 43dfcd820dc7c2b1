package provider

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// cohere speaks the v2 chat API. The assistant reply arrives as a list of
// typed content blocks under message.content rather than OpenAI's choices.
// Error envelopes put the message at the top level, not under "error".
type cohere struct {
	baseURL    string
	httpClient *http.Client
}

func newCohere(client *http.Client, baseURL string) *cohere {
	return &cohere{baseURL: baseURL, httpClient: client}
}

func (c *cohere) Name() string { return "cohere" }

func (c *cohere) Complete(ctx context.Context, apiKey, prompt, model string) (string, error) {
	if err := requireKey("cohere", "Cohere", apiKey); err != nil {
		return "", err
	}
	if strings.TrimSpace(model) == "" {
		model = "command-r-plus-08-2024"
	}
	payload := map[string]any{
		"model":    model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
	var out struct {
		Message struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	}
	status, body, err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v2/chat", bearerHeader(apiKey), payload, &out)
	if err != nil {
		return "", &Error{Provider: "cohere", Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return "", &Error{
			Provider:   "cohere",
			StatusCode: status,
			Message:    upstreamMessage(body, true, fmt.Sprintf("Cohere request failed (%d)", status)),
		}
	}
	if len(out.Message.Content) == 0 {
		return "", &Error{Provider: "cohere", Message: "Cohere returned empty response"}
	}
	var sb strings.Builder
	for _, block := range out.Message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return "", &Error{Provider: "cohere", Message: "Cohere returned no text"}
	}
	return text, nil
}

func (c *cohere) ListModels(ctx context.Context, apiKey string) ([]Model, error) {
	if err := requireKey("cohere", "Cohere", apiKey); err != nil {
		return nil, err
	}
	var out struct {
		Models []struct {
			Name          string   `json:"name"`
			ContextLength int      `json:"context_length"`
			Endpoints     []string `json:"endpoints"`
		} `json:"models"`
	}
	status, body, err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/v1/models", bearerHeader(apiKey), nil, &out)
	if err != nil {
		return nil, &Error{Provider: "cohere", Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return nil, &Error{
			Provider:   "cohere",
			StatusCode: status,
			Message:    upstreamMessage(body, true, fmt.Sprintf("Cohere listModels failed (%d)", status)),
		}
	}

	models := make([]Model, 0, len(out.Models))
	for _, m := range out.Models {
		if len(m.Endpoints) > 0 && !slices.Contains(m.Endpoints, "chat") {
			continue
		}
		models = append(models, Model{
			ID:            m.Name,
			Name:          m.Name,
			DisplayName:   m.Name,
			ContextLength: m.ContextLength,
			Endpoints:     m.Endpoints,
		})
	}
	sortModelsByID(models)
	return models, nil
}
