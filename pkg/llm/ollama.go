package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/ollama/ollama/api"

	"conductor/pkg/capability"
	"conductor/pkg/faults"
)

// OllamaClient implements Client over a local Ollama server.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a raw Ollama client for host (e.g.
// "http://localhost:11434"); middleware is applied by the caller.
func NewOllamaClient(host, model string) *OllamaClient {
	parsed, err := url.Parse(host)
	if err != nil || host == "" {
		parsed, _ = url.Parse("http://localhost:11434")
	}

	return &OllamaClient{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, in Request) (Response, error) {
	if err := validateRequest(in); err != nil {
		return Response{}, faults.Wrap(faults.KindTerminal, err, "invalid completion request")
	}

	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]

		ollamaMsg := api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for j := range msg.ToolCalls {
			call := &msg.ToolCalls[j]
			ollamaMsg.ToolCalls = append(ollamaMsg.ToolCalls, api.ToolCall{
				ID: call.ID,
				Function: api.ToolCallFunction{
					Name:      call.Name,
					Arguments: toOllamaArguments(call.Parameters),
				},
			})
		}

		// Tool results travel as separate role:"tool" messages.
		for j := range msg.ToolResults {
			res := &msg.ToolResults[j]
			messages = append(messages, api.Message{
				Role:       "tool",
				Content:    res.Content,
				ToolCallID: res.ToolCallID,
			})
		}
		if msg.Content != "" || len(msg.ToolCalls) > 0 {
			messages = append(messages, ollamaMsg)
		}
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if len(in.Tools) > 0 {
		req.Tools = convertToolsToOllama(in.Tools)
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return Response{}, faults.Wrap(faults.KindOf(err), err, "ollama completion failed")
	}

	result := Response{
		Content:    response.Message.Content,
		StopReason: ollamaStopReason(&response),
		Usage: Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}
	for i := range response.Message.ToolCalls {
		call := &response.Message.ToolCalls[i]
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:         id,
			Name:       call.Function.Name,
			Parameters: call.Function.Arguments.ToMap(),
		})
	}

	return result, nil
}

// ModelName implements Client.
func (c *OllamaClient) ModelName() string {
	return c.model
}

func convertToolsToOllama(defs []capability.Definition) api.Tools {
	tools := make(api.Tools, len(defs))
	for i := range defs {
		def := &defs[i]

		properties := api.NewToolPropertiesMap()
		for _, name := range sortedKeys(def.InputSchema.Properties) {
			prop := def.InputSchema.Properties[name]
			ollamaProp := api.ToolProperty{
				Type:        api.PropertyType{prop.Type},
				Description: prop.Description,
			}
			if len(prop.Enum) > 0 {
				enumVals := make([]any, len(prop.Enum))
				for j, v := range prop.Enum {
					enumVals[j] = v
				}
				ollamaProp.Enum = enumVals
			}
			properties.Set(name, ollamaProp)
		}

		tools[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       def.InputSchema.Type,
					Properties: properties,
					Required:   def.InputSchema.Required,
				},
			},
		}
	}

	return tools
}

// toOllamaArguments builds the ordered argument map the API requires,
// inserting keys in lexical order for deterministic wire output.
func toOllamaArguments(params map[string]any) api.ToolCallFunctionArguments {
	args := api.NewToolCallFunctionArguments()
	for _, name := range sortedKeys(params) {
		args.Set(name, params[name])
	}
	return args
}

// sortedKeys returns the map's keys in lexical order so the ordered
// argument and property maps the API requires are built deterministically.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ollamaStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}
