package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"conductor/pkg/faults"
)

// OpenAIClient implements Client over the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a raw OpenAI client; middleware is applied by
// the caller.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements Client. The Responses API takes a single flattened
// input string rather than a message array.
func (c *OpenAIClient) Complete(ctx context.Context, in Request) (Response, error) {
	if err := validateRequest(in); err != nil {
		return Response{}, faults.Wrap(faults.KindTerminal, err, "invalid completion request")
	}

	var input string
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case RoleSystem:
			input += fmt.Sprintf("System: %s\n\n", msg.Content)
		case RoleAssistant:
			input += fmt.Sprintf("Assistant: %s\n\n", renderAssistant(msg))
		default:
			input += renderUser(msg) + "\n\n"
		}
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	if len(in.Tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, len(in.Tools))
		for i := range in.Tools {
			def := &in.Tools[i]
			properties := make(map[string]any, len(def.InputSchema.Properties))
			for name := range def.InputSchema.Properties {
				prop := def.InputSchema.Properties[name]
				propMap := map[string]any{"type": prop.Type}
				if prop.Description != "" {
					propMap["description"] = prop.Description
				}
				if len(prop.Enum) > 0 {
					propMap["enum"] = prop.Enum
				}
				properties[name] = propMap
			}

			toolParams[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters: openai.FunctionParameters(map[string]any{
						"type":       "object",
						"properties": properties,
						"required":   def.InputSchema.Required,
					}),
				},
			}
		}
		params.Tools = toolParams
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, classifySDKError("openai", err)
	}
	if resp == nil {
		return Response{}, faults.New(faults.KindTransient, "empty response from OpenAI Responses API")
	}

	var toolCalls []ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		var parameters map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &parameters); err != nil {
				return Response{}, faults.Wrap(faults.KindTerminal, err, fmt.Sprintf("malformed tool arguments for %s", call.Name))
			}
		}
		toolCalls = append(toolCalls, ToolCall{ID: call.ID, Name: call.Name, Parameters: parameters})
	}

	return Response{
		Content:    resp.OutputText(),
		ToolCalls:  toolCalls,
		StopReason: "end_turn",
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// ModelName implements Client.
func (c *OpenAIClient) ModelName() string {
	return c.model
}
