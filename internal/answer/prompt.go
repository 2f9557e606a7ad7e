package answer

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemTemplate = `You are an agricultural extension advisor for smallholder farmers.
Answer the farmer's question about their %s crop with short, practical steps
they can act on today. Reply in the language with tag %q.
Respond with a JSON object with two fields:
  "answer": the advice text
  "sources": the advisory or government source your advice is based on, or an empty string if none`

func buildMessages(question, crop, language string) []Message {
	return []Message{
		{Role: "system", Content: fmt.Sprintf(systemTemplate, crop, language)},
		{Role: "user", Content: question},
	}
}

// modelAnswer is the structured reply requested from the model.
type modelAnswer struct {
	Answer  string `json:"answer"`
	Sources string `json:"sources"`
}

// parseAnswer decodes the model's reply. Models occasionally ignore the JSON
// instruction; in that case the raw content becomes the answer with no sources.
func parseAnswer(content string) (string, *string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", nil, fmt.Errorf("model returned an empty answer")
	}

	var ma modelAnswer
	if err := json.Unmarshal([]byte(trimmed), &ma); err != nil || ma.Answer == "" {
		return trimmed, nil, nil
	}

	var sources *string
	if s := strings.TrimSpace(ma.Sources); s != "" {
		sources = &s
	}
	return ma.Answer, sources, nil
}
