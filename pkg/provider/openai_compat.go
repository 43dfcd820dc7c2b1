package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openAICompat serves every provider that speaks the OpenAI chat-completions
// dialect. Only the base URL, default model, and listing behavior differ.
type openAICompat struct {
	name         string
	displayName  string
	baseURL      string
	defaultModel string
	httpClient   *http.Client

	// list produces the provider's model catalog; the /v1/models wire shape
	// varies too much across vendors to share a single implementation.
	list func(ctx context.Context, a *openAICompat, apiKey string) ([]Model, error)
}

func (a *openAICompat) Name() string { return a.name }

func (a *openAICompat) client(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = a.baseURL
	cfg.HTTPClient = a.httpClient
	return openai.NewClientWithConfig(cfg)
}

func (a *openAICompat) Complete(ctx context.Context, apiKey, prompt, model string) (string, error) {
	if err := requireKey(a.name, a.displayName, apiKey); err != nil {
		return "", err
	}
	if strings.TrimSpace(model) == "" {
		model = a.defaultModel
	}
	resp, err := a.client(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", a.wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: a.name, Message: a.displayName + " returned empty response"}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Provider: a.name, Message: a.displayName + " returned empty response"}
	}
	return text, nil
}

func (a *openAICompat) ListModels(ctx context.Context, apiKey string) ([]Model, error) {
	if err := requireKey(a.name, a.displayName, apiKey); err != nil {
		return nil, err
	}
	return a.list(ctx, a, apiKey)
}

func (a *openAICompat) wrapErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = fmt.Sprintf("%s request failed (status %d)", a.displayName, apiErr.HTTPStatusCode)
		}
		return &Error{Provider: a.name, StatusCode: apiErr.HTTPStatusCode, Message: msg}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{
			Provider:   a.name,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    fmt.Sprintf("%s request failed (status %d)", a.displayName, reqErr.HTTPStatusCode),
		}
	}
	return &Error{Provider: a.name, Message: err.Error()}
}

// listStandard is the plain OpenAI /models listing. isFree annotates catalogs
// that are uniformly free (groq) or uniformly paid (openai); nil leaves the
// field out.
func listStandard(ctx context.Context, a *openAICompat, apiKey string, isFree *bool) ([]Model, error) {
	resp, err := a.client(apiKey).ListModels(ctx)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	models := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, Model{ID: m.ID, OwnedBy: m.OwnedBy, IsFree: isFree})
	}
	sortModelsByID(models)
	return models, nil
}

func newOpenAI(client *http.Client, baseURL string) *openAICompat {
	return &openAICompat{
		name:         "openai",
		displayName:  "OpenAI",
		baseURL:      baseURL,
		defaultModel: "gpt-4o-mini",
		httpClient:   client,
		list: func(ctx context.Context, a *openAICompat, apiKey string) ([]Model, error) {
			return listStandard(ctx, a, apiKey, boolPtr(false))
		},
	}
}

func newGroq(client *http.Client, baseURL string) *openAICompat {
	return &openAICompat{
		name:         "groq",
		displayName:  "Groq",
		baseURL:      baseURL,
		defaultModel: "llama-3.1-8b-instant",
		httpClient:   client,
		list: func(ctx context.Context, a *openAICompat, apiKey string) ([]Model, error) {
			return listStandard(ctx, a, apiKey, boolPtr(true))
		},
	}
}

func newDeepSeek(client *http.Client, baseURL string) *openAICompat {
	return &openAICompat{
		name:         "deepseek",
		displayName:  "DeepSeek",
		baseURL:      baseURL,
		defaultModel: "deepseek-chat",
		httpClient:   client,
		list: func(ctx context.Context, a *openAICompat, apiKey string) ([]Model, error) {
			models, err := listStandard(ctx, a, apiKey, nil)
			if err != nil {
				return nil, err
			}
			for i := range models {
				models[i].Name = models[i].ID
			}
			return models, nil
		},
	}
}
