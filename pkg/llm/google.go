package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"conductor/pkg/capability"
	"conductor/pkg/faults"
)

// GeminiClient implements Client over the Google GenAI API.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGeminiClient creates a raw Gemini client; middleware is applied by
// the caller. The underlying SDK client is created lazily because its
// constructor needs a context.
func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, in Request) (Response, error) {
	if err := validateRequest(in); err != nil {
		return Response{}, faults.Wrap(faults.KindTerminal, err, "invalid completion request")
	}

	if c.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return Response{}, faults.Wrap(faults.KindTransient, err, "failed to create Gemini client")
		}
		c.client = client
	}

	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return Response{}, faults.Wrap(faults.KindTerminal, err, "message conversion error")
	}

	maxTokens := int32(in.MaxTokens)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	if len(in.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: convertToolsToGemini(in.Tools)}}
		// Gemini may return empty responses when not forced to pick a
		// tool, so "any" mode is used whenever tools are present.
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return Response{}, faults.Wrap(faults.KindOf(err), err, "gemini completion failed")
	}
	if result == nil {
		return Response{}, faults.New(faults.KindTransient, "empty response from Gemini API")
	}

	resp := Response{
		Content:    result.Text(),
		StopReason: "end_turn",
	}
	for i, call := range result.FunctionCalls() {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: id, Name: call.Name, Parameters: call.Args})
	}

	return resp, nil
}

// ModelName implements Client.
func (c *GeminiClient) ModelName() string {
	return c.model
}

func convertMessagesToGemini(messages []Message) (contents []*genai.Content, systemInstruction string, err error) {
	for i := range messages {
		msg := &messages[i]

		if msg.Role == RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n"
			}
			systemInstruction += msg.Content
			continue
		}

		role := genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}
		for j := range msg.ToolCalls {
			call := &msg.ToolCalls[j]
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: call.Name, Args: call.Parameters},
			})
		}
		for j := range msg.ToolResults {
			res := &msg.ToolResults[j]
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     res.ToolCallID,
					Response: map[string]any{"content": res.Content},
				},
			})
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}

	return contents, systemInstruction, nil
}

func convertToolsToGemini(defs []capability.Definition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(defs))
	for i := range defs {
		def := &defs[i]

		properties := make(map[string]*genai.Schema, len(def.InputSchema.Properties))
		for name := range def.InputSchema.Properties {
			prop := def.InputSchema.Properties[name]
			properties[name] = convertPropertyToGeminiSchema(&prop)
		}

		declarations[i] = &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   def.InputSchema.Required,
			},
		}
	}

	return declarations
}

func convertPropertyToGeminiSchema(prop *capability.Property) *genai.Schema {
	schema := &genai.Schema{Description: prop.Description}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertPropertyToGeminiSchema(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if prop.Properties != nil {
			schema.Properties = make(map[string]*genai.Schema, len(prop.Properties))
			for name, nested := range prop.Properties {
				schema.Properties[name] = convertPropertyToGeminiSchema(nested)
			}
		}
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}

	return schema
}
