package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 4 << 20

// doJSON issues a request with a JSON body (nil for GET), decodes a 2xx
// response into out, and returns the raw body plus status for error paths.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload, out any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, raw, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, raw, nil
}

// upstreamMessage digs the most specific message out of a provider error
// body. Providers disagree on the envelope: some nest under "error", some put
// a top-level "message". preferTopLevel flips the precedence for the latter.
func upstreamMessage(body []byte, preferTopLevel bool, fallback string) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &envelope)

	nested := strings.TrimSpace(envelope.Error.Message)
	top := strings.TrimSpace(envelope.Message)
	if preferTopLevel {
		nested, top = top, nested
	}
	if nested != "" {
		return nested
	}
	if top != "" {
		return top
	}
	return fallback
}

func bearerHeader(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}
