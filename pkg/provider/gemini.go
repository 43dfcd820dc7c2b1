package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	geminiDefaultModel = "models/gemini-2.5-flash"
	geminiLegacyModel  = "models/gemini-pro"
)

// gemini speaks the generativelanguage generateContent dialect. The API key
// travels as a query parameter, so request URLs must never be logged. Newer
// models live under /v1; accounts without v1 access fall back to /v1beta.
type gemini struct {
	baseURL    string
	httpClient *http.Client
}

func newGemini(client *http.Client, baseURL string) *gemini {
	return &gemini{baseURL: baseURL, httpClient: client}
}

func (g *gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPayload struct {
	Contents []geminiContent `json:"contents"`
}

func geminiPrompt(prompt string) geminiPayload {
	return geminiPayload{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}
}

func (g *gemini) Complete(ctx context.Context, apiKey, prompt, model string) (string, error) {
	if err := requireKey("gemini", "Gemini", apiKey); err != nil {
		return "", err
	}
	payload := geminiPrompt(prompt)

	chosen := normalizeGeminiModel(model)
	primary := chosen
	if primary == "" {
		primary = geminiDefaultModel
	}
	text, err := g.generate(ctx, "v1", primary, apiKey, payload)
	if err == nil {
		return text, nil
	}

	// Fallback for projects where the v1 model isn't available.
	fallback := chosen
	if fallback == "" {
		fallback = geminiLegacyModel
	}
	text, betaErr := g.generate(ctx, "v1beta", fallback, apiKey, payload)
	if betaErr != nil {
		return "", betaErr
	}
	return text, nil
}

func (g *gemini) generate(ctx context.Context, apiVersion, model, apiKey string, payload geminiPayload) (string, error) {
	var out struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	endpoint := fmt.Sprintf("%s/%s/%s:generateContent?key=%s",
		g.baseURL, apiVersion, model, url.QueryEscape(apiKey))
	status, body, err := doJSON(ctx, g.httpClient, http.MethodPost, endpoint, nil, payload, &out)
	if err != nil {
		return "", &Error{Provider: "gemini", Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return "", &Error{
			Provider:   "gemini",
			StatusCode: status,
			Message:    upstreamMessage(body, false, fmt.Sprintf("Gemini request failed (%d)", status)),
		}
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", &Error{Provider: "gemini", Message: "Gemini returned empty response"}
	}
	text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", &Error{Provider: "gemini", Message: "Gemini returned empty response"}
	}
	return text, nil
}

func (g *gemini) ListModels(ctx context.Context, apiKey string) ([]Model, error) {
	if err := requireKey("gemini", "Gemini", apiKey); err != nil {
		return nil, err
	}
	models, err := g.listVersion(ctx, "v1", apiKey)
	if err == nil {
		return models, nil
	}
	return g.listVersion(ctx, "v1beta", apiKey)
}

func (g *gemini) listVersion(ctx context.Context, apiVersion, apiKey string) ([]Model, error) {
	var out struct {
		Models []struct {
			Name                       string   `json:"name"`
			DisplayName                string   `json:"displayName"`
			Description                string   `json:"description"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	endpoint := fmt.Sprintf("%s/%s/models?key=%s", g.baseURL, apiVersion, url.QueryEscape(apiKey))
	status, body, err := doJSON(ctx, g.httpClient, http.MethodGet, endpoint, nil, nil, &out)
	if err != nil {
		return nil, &Error{Provider: "gemini", Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return nil, &Error{
			Provider:   "gemini",
			StatusCode: status,
			Message:    upstreamMessage(body, false, fmt.Sprintf("Gemini listModels failed (%d)", status)),
		}
	}
	models := make([]Model, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, Model{
			Name:                       m.Name,
			DisplayName:                m.DisplayName,
			Description:                m.Description,
			SupportedGenerationMethods: m.SupportedGenerationMethods,
		})
	}
	return models, nil
}

// normalizeGeminiModel maps a caller-supplied model to the resource form the
// API expects ("models/<id>"). Empty input defers to the adapter defaults.
func normalizeGeminiModel(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return ""
	}
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}
