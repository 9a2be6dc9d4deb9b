package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ModelUsage is aggregated token spend for one model over a window.
type ModelUsage struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// QueryService aggregates historical usage from an external Prometheus
// server scraping this process.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service pointed at prometheusURL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetModelUsage retrieves aggregated token counts for a model over the given
// window.
func (q *QueryService) GetModelUsage(ctx context.Context, modelName string, window time.Duration) (*ModelUsage, error) {
	usage := &ModelUsage{Model: modelName}

	promptQuery := fmt.Sprintf(`sum(increase(model_tokens_total{model=%q, type="prompt"}[%s]))`, modelName, model.Duration(window))
	promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	usage.PromptTokens = scalarOf(promptResult)

	completionQuery := fmt.Sprintf(`sum(increase(model_tokens_total{model=%q, type="completion"}[%s]))`, modelName, model.Duration(window))
	completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	usage.CompletionTokens = scalarOf(completionResult)

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return usage, nil
}

// TurnOutcomes returns the count of turns per terminal state over the window.
func (q *QueryService) TurnOutcomes(ctx context.Context, window time.Duration) (map[string]int64, error) {
	query := fmt.Sprintf(`sum by (state) (increase(turns_total[%s]))`, model.Duration(window))
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query turn outcomes: %w", err)
	}

	outcomes := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			outcomes[string(sample.Metric["state"])] = int64(sample.Value)
		}
	}

	return outcomes, nil
}

func scalarOf(result model.Value) int64 {
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value)
	}
	return 0
}
