package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"time"

	"conductor/pkg/capability"
	"conductor/pkg/config"
	"conductor/pkg/faults"
)

// TrendHandler reports current interest signals for a topic. The signal is
// synthesized from the topic and the current hour bucket, so it drifts over
// time the way a live feed would. Results are only worth caching briefly.
type TrendHandler struct {
	now func() time.Time
}

// NewTrendHandler creates the trend_snapshot handler.
func NewTrendHandler() *TrendHandler {
	return &TrendHandler{now: time.Now}
}

// TrendDefinition describes trend_snapshot.
func TrendDefinition() capability.Definition {
	return capability.Definition{
		Name:        "trend_snapshot",
		Description: "Fetch the current interest level and momentum for a topic.",
		TTLClass:    config.TTLClassVolatile,
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"topic":  {Type: "string", Description: "Topic to measure"},
				"region": {Type: "string", Description: "Optional region filter"},
			},
			Required: []string{"topic"},
		},
	}
}

// Execute implements capability.Handler.
func (h *TrendHandler) Execute(_ context.Context, _ string, params map[string]any, _ capability.Context) (map[string]any, error) {
	topic, _ := params["topic"].(string)
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, faults.New(faults.KindTerminal, "trend_snapshot requires a topic")
	}
	region, _ := params["region"].(string)
	if region == "" {
		region = "global"
	}

	bucket := h.now().UTC().Truncate(time.Hour)
	interest := signal(topic, region, bucket)
	previous := signal(topic, region, bucket.Add(-time.Hour))

	momentum := "steady"
	switch {
	case interest > previous+5:
		momentum = "rising"
	case interest < previous-5:
		momentum = "falling"
	}

	return map[string]any{
		"topic":       topic,
		"region":      region,
		"interest":    interest,
		"momentum":    momentum,
		"observed_at": bucket.Format(time.RFC3339),
	}, nil
}

func signal(topic, region string, bucket time.Time) float64 {
	key := strings.ToLower(topic) + "|" + strings.ToLower(region) + "|" + bucket.Format(time.RFC3339)
	sum := sha256.Sum256([]byte(key))
	raw := binary.BigEndian.Uint32(sum[:4])
	return float64(raw % 100)
}
