package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/capability"
	"conductor/pkg/faults"
	"conductor/pkg/llm"
	"conductor/pkg/proto"
)

func TestCreativeGeneratesRequestedCount(t *testing.T) {
	client := llm.NewMockClient(llm.MockText("Buy now\nSave big\nAct today"))
	h := NewCreativeHandler(client)

	out, err := h.Execute(context.Background(), "generate_creative", map[string]any{
		"brief": "spring sale on running shoes",
		"count": float64(3),
		"tone":  "urgent",
	}, capability.Context{})
	require.NoError(t, err)

	variants, ok := out["creatives"].([]string)
	require.True(t, ok)
	assert.Len(t, variants, 3)
	assert.Equal(t, "Buy now", variants[0])
	assert.Equal(t, "urgent", out["tone"])
}

func TestCreativePadsShortCompletions(t *testing.T) {
	client := llm.NewMockClient(llm.MockText("Only one line"))
	h := NewCreativeHandler(client)

	out, err := h.Execute(context.Background(), "generate_creative", map[string]any{
		"brief": "coffee subscription",
		"count": float64(3),
	}, capability.Context{})
	require.NoError(t, err)

	variants := out["creatives"].([]string)
	assert.Len(t, variants, 3)
}

func TestCreativeRequiresBrief(t *testing.T) {
	h := NewCreativeHandler(llm.NewMockClient())

	_, err := h.Execute(context.Background(), "generate_creative", map[string]any{"count": float64(1)}, capability.Context{})
	require.Error(t, err)
	assert.Equal(t, faults.KindTerminal, faults.KindOf(err))
}

func TestCompetitorAnalysisIsDeterministic(t *testing.T) {
	h := NewCompetitorHandler()
	params := map[string]any{
		"competitors": []any{"Acme", "Globex", "Initech"},
		"segment":     "b2b saas",
	}

	first, err := h.Execute(context.Background(), "competitor_analysis", params, capability.Context{})
	require.NoError(t, err)
	second, err := h.Execute(context.Background(), "competitor_analysis", params, capability.Context{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "b2b saas", first["segment"])

	ranked := first["competitors"].([]map[string]any)
	require.Len(t, ranked, 3)
	assert.Equal(t, 1, ranked[0]["rank"])
	assert.Equal(t, first["leader"], ranked[0]["name"])
}

func TestCompetitorAnalysisRequiresCompetitors(t *testing.T) {
	h := NewCompetitorHandler()

	_, err := h.Execute(context.Background(), "competitor_analysis", map[string]any{}, capability.Context{})
	require.Error(t, err)
	assert.Equal(t, faults.KindTerminal, faults.KindOf(err))
}

func TestTrendSnapshotStableWithinHour(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	h := &TrendHandler{now: func() time.Time { return fixed }}
	params := map[string]any{"topic": "running shoes"}

	first, err := h.Execute(context.Background(), "trend_snapshot", params, capability.Context{})
	require.NoError(t, err)

	h.now = func() time.Time { return fixed.Add(20 * time.Minute) }
	second, err := h.Execute(context.Background(), "trend_snapshot", params, capability.Context{})
	require.NoError(t, err)

	assert.Equal(t, first["interest"], second["interest"])
	assert.Equal(t, "global", first["region"])
	assert.Contains(t, []string{"rising", "falling", "steady"}, first["momentum"])
}

func TestTrendSnapshotRequiresTopic(t *testing.T) {
	h := NewTrendHandler()

	_, err := h.Execute(context.Background(), "trend_snapshot", map[string]any{"topic": "  "}, capability.Context{})
	require.Error(t, err)
	assert.Equal(t, faults.KindTerminal, faults.KindOf(err))
}

func TestPickAudienceSuspendsWithoutSelection(t *testing.T) {
	h := NewAudienceHandler()

	_, err := h.Execute(context.Background(), "pick_audience", map[string]any{"campaign": "spring sale"}, capability.Context{})
	require.Error(t, err)

	var needs *capability.InputNeeded
	require.True(t, errors.As(err, &needs))
	assert.Equal(t, proto.InputSelection, needs.Kind)
	assert.Equal(t, knownAudiences, needs.Options)
}

func TestPickAudienceConfirmsKnownSegment(t *testing.T) {
	h := NewAudienceHandler()

	out, err := h.Execute(context.Background(), "pick_audience", map[string]any{"audience": "Gen-Z"}, capability.Context{})
	require.NoError(t, err)
	assert.Equal(t, "gen-z", out["audience"])
	assert.Equal(t, true, out["confirmed"])
}

func TestPickAudienceRejectsUnknownSegment(t *testing.T) {
	h := NewAudienceHandler()

	_, err := h.Execute(context.Background(), "pick_audience", map[string]any{"audience": "astronauts"}, capability.Context{})
	require.Error(t, err)
	assert.Equal(t, faults.KindTerminal, faults.KindOf(err))
}

func TestRegisterAllSealsRegistry(t *testing.T) {
	reg := capability.NewRegistry()
	require.NoError(t, RegisterAll(reg, llm.NewMockClient()))

	names := reg.Names()
	assert.ElementsMatch(t, []string{"generate_creative", "competitor_analysis", "trend_snapshot", "pick_audience"}, names)

	_, def, ok := reg.Get("generate_creative")
	require.True(t, ok)
	assert.Equal(t, "count", def.QuantityParam)

	assert.Panics(t, func() {
		_ = reg.Register(TrendDefinition(), NewTrendHandler())
	})
}
