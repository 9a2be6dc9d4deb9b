package llm

import (
	"context"
	"time"

	"conductor/pkg/resilience"
)

// Middleware wraps a Client with additional behavior. Middlewares compose
// with Chain; earlier middlewares are outermost.
type Middleware func(next Client) Client

type clientFunc struct {
	complete  func(context.Context, Request) (Response, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, in Request) (Response, error) {
	return f.complete(ctx, in)
}

func (f clientFunc) ModelName() string {
	return f.modelName()
}

// WrapClient builds a Client from plain functions. Helper for middleware
// implementations.
func WrapClient(complete func(context.Context, Request) (Response, error), modelName func() string) Client {
	return clientFunc{complete: complete, modelName: modelName}
}

// Chain composes middlewares around a base client:
// Chain(c, mw1, mw2) yields the call stack mw1 -> mw2 -> c.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}

	return client
}

// WithResilience wraps completions in retry + circuit breaking, one
// breaker endpoint per model.
func WithResilience(inv *resilience.Invoker) Middleware {
	return func(next Client) Client {
		return WrapClient(
			func(ctx context.Context, in Request) (Response, error) {
				return resilience.Do(ctx, inv, "model:"+next.ModelName(), func(ctx context.Context) (Response, error) {
					return next.Complete(ctx, in)
				})
			},
			next.ModelName,
		)
	}
}

// CompletionObserver receives one observation per completion attempt.
// Implemented by the metrics package; defined here so providers stay free
// of a metrics dependency.
type CompletionObserver interface {
	ObserveCompletion(model string, promptTokens, completionTokens int, success bool, duration time.Duration)
}

// WithObserver records token usage and latency for every completion.
// When the provider reports no usage, tokens are estimated locally.
func WithObserver(obs CompletionObserver, est *TokenCounter) Middleware {
	return func(next Client) Client {
		return WrapClient(
			func(ctx context.Context, in Request) (Response, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, in)

				usage := resp.Usage
				if usage.PromptTokens == 0 {
					usage.PromptTokens = est.EstimateRequest(in)
				}
				if usage.CompletionTokens == 0 && err == nil {
					usage.CompletionTokens = est.Count(resp.Content)
				}
				obs.ObserveCompletion(next.ModelName(), usage.PromptTokens, usage.CompletionTokens, err == nil, time.Since(start))

				return resp, err
			},
			next.ModelName,
		)
	}
}
