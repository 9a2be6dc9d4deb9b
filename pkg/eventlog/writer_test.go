package eventlog

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/proto"
)

func TestAppendAndReadBack(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Append(proto.StatusEvent("turn-1", proto.StatePlanning, "round 1")))
	require.NoError(t, w.Append(proto.TextEvent("turn-1", "Here is the plan.")))
	require.NoError(t, w.Append(proto.DoneEvent("turn-1")))

	events, err := ReadEvents(w.CurrentFile())
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, proto.EventStatus, events[0].Type)
	assert.Equal(t, proto.StatePlanning, events[0].Phase)
	assert.Equal(t, "Here is the plan.", events[1].Text)
	assert.Equal(t, proto.EventDone, events[2].Type)
}

func TestRotatesOnDateChange(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	day1 := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return day1 }
	require.NoError(t, w.Append(proto.StatusEvent("turn-1", proto.StateReceived, "")))
	first := w.CurrentFile()

	w.now = func() time.Time { return day1.Add(2 * time.Minute) }
	require.NoError(t, w.Append(proto.StatusEvent("turn-2", proto.StateReceived, "")))
	second := w.CurrentFile()

	assert.NotEqual(t, first, second)

	files, err := ListFiles(w.logDir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestReadEventsRejectsMalformedLine(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Append(proto.DoneEvent("turn-1")))
	path := w.CurrentFile()
	require.NoError(t, w.Close())

	appendRaw(t, path, "{not json}\n")

	_, err = ReadEvents(path)
	require.Error(t, err)
}

func appendRaw(t *testing.T, path, raw string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(raw)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestErrorEventRoundTrip(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Append(proto.ErrorEvent("turn-1", "budget_exhausted", "insufficient budget")))

	events, err := ReadEvents(w.CurrentFile())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "budget_exhausted", events[0].Code)
	assert.Equal(t, "insufficient budget", events[0].Message)
}
