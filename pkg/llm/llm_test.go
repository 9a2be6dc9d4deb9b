package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/faults"
	"conductor/pkg/resilience"
)

func TestChainOrdersMiddlewares(t *testing.T) {
	var order []string

	tag := func(name string) Middleware {
		return func(next Client) Client {
			return WrapClient(
				func(ctx context.Context, in Request) (Response, error) {
					order = append(order, name)
					return next.Complete(ctx, in)
				},
				next.ModelName,
			)
		}
	}

	client := Chain(NewMockClient(MockText("done")), tag("outer"), tag("inner"))
	_, err := client.Complete(context.Background(), NewRequest([]Message{UserMessage("hi")}))

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, "mock", client.ModelName())
}

func TestMockClientReplaysSteps(t *testing.T) {
	mock := NewMockClient(
		MockToolCalls(ToolCall{ID: "call-1", Name: "trend_snapshot", Parameters: map[string]any{"topic": "ai"}}),
		MockText("all done"),
	)

	resp, err := mock.Complete(context.Background(), NewRequest([]Message{UserMessage("go")}))
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "trend_snapshot", resp.ToolCalls[0].Name)

	resp, err = mock.Complete(context.Background(), NewRequest([]Message{UserMessage("fold")}))
	require.NoError(t, err)
	assert.Equal(t, "all done", resp.Content)

	_, err = mock.Complete(context.Background(), NewRequest([]Message{UserMessage("again")}))
	require.Error(t, err)
	assert.Equal(t, 3, mock.Calls())
}

func TestWithResilienceRetriesTransient(t *testing.T) {
	mock := NewMockClient(
		MockStep{Err: faults.New(faults.KindTransient, "connection reset")},
		MockText("recovered"),
	)

	inv := resilience.NewInvoker(resilience.NewPolicy(resilience.RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}, nil), resilience.NewBreakerSet(resilience.DefaultBreakerConfig))

	client := Chain(mock, WithResilience(inv))

	resp, err := client.Complete(context.Background(), NewRequest([]Message{UserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 2, mock.Calls())
}

func TestFlattenExtractsSystemAndMerges(t *testing.T) {
	system, merged, err := flatten([]Message{
		SystemMessage("be helpful"),
		UserMessage("first"),
		{Role: RoleUser, ToolResults: []ToolResult{{ToolCallID: "call-1", Content: `{"ok":true}`}}},
		{Role: RoleAssistant, Content: "thinking"},
		UserMessage("second"),
	})

	require.NoError(t, err)
	assert.Equal(t, "be helpful", system)
	require.Len(t, merged, 3)
	assert.Equal(t, RoleUser, merged[0].Role)
	assert.Contains(t, merged[0].Content, "first")
	assert.Contains(t, merged[0].Content, "call-1")
	assert.Equal(t, RoleAssistant, merged[1].Role)
	assert.Equal(t, RoleUser, merged[2].Role)
}

func TestFlattenRejectsEmptyAndTrailingAssistant(t *testing.T) {
	_, _, err := flatten(nil)
	assert.Error(t, err)

	_, _, err = flatten([]Message{SystemMessage("only system")})
	assert.Error(t, err)

	_, _, err = flatten([]Message{UserMessage("hi"), {Role: RoleAssistant, Content: "bye"}})
	assert.Error(t, err)
}

func TestTokenCounterFallback(t *testing.T) {
	var tc *TokenCounter
	assert.Equal(t, 3, tc.Count("13 characters"), "nil counter falls back to len/4")

	counter, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)
	assert.Greater(t, counter.Count("the quick brown fox jumps over the lazy dog"), 5)

	req := NewRequest([]Message{
		UserMessage("hello world"),
		{Role: RoleUser, ToolResults: []ToolResult{{ToolCallID: "c1", Content: "result text"}}},
	})
	assert.Greater(t, counter.EstimateRequest(req), 0)
}
