package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"conductor/pkg/faults"
)

// AnthropicClient implements Client over the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient creates a raw Anthropic client; middleware is applied
// by the caller.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, in Request) (Response, error) {
	if err := validateRequest(in); err != nil {
		return Response{}, faults.Wrap(faults.KindTerminal, err, "invalid completion request")
	}

	systemPrompt, alternating, err := flatten(in.Messages)
	if err != nil {
		return Response{}, faults.Wrap(faults.KindTerminal, err, "message alternation error")
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	if len(in.Tools) > 0 {
		var toolParams []anthropic.ToolUnionParam
		for i := range in.Tools {
			def := &in.Tools[i]

			var properties any
			if len(def.InputSchema.Properties) > 0 {
				props := make(map[string]any, len(def.InputSchema.Properties))
				for name := range def.InputSchema.Properties {
					prop := def.InputSchema.Properties[name]
					propMap := map[string]any{"type": prop.Type}
					if prop.Description != "" {
						propMap["description"] = prop.Description
					}
					if len(prop.Enum) > 0 {
						propMap["enum"] = prop.Enum
					}
					props[name] = propMap
				}
				properties = props
			}

			schema := anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   def.InputSchema.Required,
			}
			toolParams = append(toolParams, anthropic.ToolUnionParamOfTool(schema, def.Name))
		}
		params.Tools = toolParams

		if in.ToolChoice == "any" {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		} else {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifySDKError("anthropic", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return Response{}, faults.New(faults.KindTransient, "empty response from Anthropic API")
	}

	var content string
	var toolCalls []ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			content += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var parameters map[string]any
			if err := json.Unmarshal(toolUse.Input, &parameters); err != nil {
				return Response{}, faults.Wrap(faults.KindTerminal, err, fmt.Sprintf("malformed tool input for %s", toolUse.Name))
			}
			toolCalls = append(toolCalls, ToolCall{ID: toolUse.ID, Name: toolUse.Name, Parameters: parameters})
		}
	}

	return Response{
		Content:    content,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// ModelName implements Client.
func (c *AnthropicClient) ModelName() string {
	return string(c.model)
}
