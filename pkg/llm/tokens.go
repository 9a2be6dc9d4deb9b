package llm

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens with the GPT-4 BPE. Non-OpenAI models
// tokenize differently, but the GPT-4 encoding is close enough for cost
// estimation and metrics.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter. The model argument is accepted for
// future per-model codecs; all current models map to the GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// Count returns the token count of text, falling back to a 4-chars-per-
// token estimate when the codec is unavailable.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}

	return count
}

// EstimateRequest counts the tokens across all messages in a request.
func (tc *TokenCounter) EstimateRequest(in Request) int {
	total := 0
	for i := range in.Messages {
		msg := &in.Messages[i]
		total += tc.Count(msg.Content)
		for j := range msg.ToolResults {
			total += tc.Count(msg.ToolResults[j].Content)
		}
	}

	return total
}
