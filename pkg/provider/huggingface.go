package provider

import (
	"context"
	"net/http"
)

// The Hugging Face router exposes no public model catalog, so listing returns
// a curated set of popular chat models in fixed order.
var huggingFaceModels = []string{
	"meta-llama/Llama-3-70b-chat-hf",
	"meta-llama/Llama-3-8b-chat-hf",
	"mistralai/Mixtral-8x7B-Instruct-v0.1",
	"Qwen/Qwen2.5-72B-Instruct",
	"Qwen/Qwen2.5-7B-Instruct",
	"google/gemma-2-27b-it",
	"HuggingFaceH4/zephyr-7b-beta",
	"microsoft/Phi-3-mini-4k-instruct",
}

func newHuggingFace(client *http.Client, baseURL string) *openAICompat {
	return &openAICompat{
		name:         "huggingface",
		displayName:  "Hugging Face",
		baseURL:      baseURL,
		defaultModel: "meta-llama/Llama-3-70b-chat-hf",
		httpClient:   client,
		list: func(context.Context, *openAICompat, string) ([]Model, error) {
			models := make([]Model, 0, len(huggingFaceModels))
			for _, id := range huggingFaceModels {
				models = append(models, Model{ID: id, Name: id})
			}
			return models, nil
		},
	}
}
