package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// schema describes the expected JSON output structure for structured chat responses.
type schema struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

type schemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

var answerSchema = &schema{
	Type: "object",
	Properties: map[string]schemaProperty{
		"answer":  {Type: "string", Description: "Practical advice for the farmer"},
		"sources": {Type: "string", Description: "Advisory source the answer is based on"},
	},
	Required: []string{"answer"},
}

// OllamaAnswerer answers questions through a local Ollama instance, asking
// the model for a structured {answer, sources} reply.
type OllamaAnswerer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaAnswerer creates an answerer targeting the given Ollama base URL.
// Call deadlines come from the caller's context.
func NewOllamaAnswerer(baseURL, model string) *OllamaAnswerer {
	return &OllamaAnswerer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 0},
	}
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   *schema   `json:"format,omitempty"`
}

// chatResponse is the JSON returned by POST /api/chat.
type chatResponse struct {
	Message Message `json:"message"`
}

func (o *OllamaAnswerer) Answer(ctx context.Context, question, crop, language string) (string, *string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    o.model,
		Messages: buildMessages(question, crop, language),
		Stream:   false,
		Format:   answerSchema,
	})
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("chat: unexpected status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil, fmt.Errorf("decoding chat response: %w", err)
	}

	return parseAnswer(result.Message.Content)
}
