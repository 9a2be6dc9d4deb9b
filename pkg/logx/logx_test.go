package logx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferKeepsRecentEntries(t *testing.T) {
	logger := NewLogger("ring-test")

	for i := 0; i < 5; i++ {
		logger.Info("entry %d", i)
	}

	entries := Recent("ring-test")
	require.GreaterOrEqual(t, len(entries), 5)

	last := entries[len(entries)-1]
	assert.Equal(t, "ring-test", last.Component)
	assert.Equal(t, "INFO", last.Level)
	assert.Equal(t, "entry 4", last.Message)
}

func TestRecentFiltersByComponent(t *testing.T) {
	NewLogger("alpha-filter").Info("from alpha")
	NewLogger("beta-filter").Info("from beta")

	for _, e := range Recent("alpha-filter") {
		assert.Equal(t, "alpha-filter", e.Component)
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	SetDebug(false)
	logger := NewLogger("debug-test")
	before := len(Recent("debug-test"))

	logger.Debug("should not appear")
	assert.Len(t, Recent("debug-test"), before)

	SetDebug(true)
	defer SetDebug(false)
	logger.Debug("should appear")
	assert.Len(t, Recent("debug-test"), before+1)
}

func TestErrorfReturnsError(t *testing.T) {
	err := Errorf("boom %d", 42)
	require.Error(t, err)
	assert.Equal(t, "boom 42", err.Error())
}
