package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// OpenRouterAnswerer answers questions through the OpenRouter
// OpenAI-compatible chat completions API.
type OpenRouterAnswerer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenRouterAnswerer creates an answerer with the given API key and model.
func NewOpenRouterAnswerer(apiKey, model string) *OpenRouterAnswerer {
	return &OpenRouterAnswerer{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 0},
	}
}

// NewOpenRouterAnswererWithBaseURL creates an answerer pointing at a custom
// base URL (for testing).
func NewOpenRouterAnswererWithBaseURL(apiKey, model, baseURL string) *OpenRouterAnswerer {
	a := NewOpenRouterAnswerer(apiKey, model)
	a.baseURL = strings.TrimRight(baseURL, "/")
	return a
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

func (o *OpenRouterAnswerer) Answer(ctx context.Context, question, crop, language string) (string, *string, error) {
	body, err := json.Marshal(completionRequest{
		Model:    o.model,
		Messages: buildMessages(question, crop, language),
	})
	if err != nil {
		return "", nil, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		content, err := o.complete(ctx, body)
		if err == nil {
			return parseAnswer(content)
		}

		if !isRateLimit(err) {
			return "", nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (o *OpenRouterAnswerer) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return "", &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}
	return result.Choices[0].Message.Content, nil
}
