package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/faults"
	"conductor/pkg/proto"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(turnID string) *Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Record{
		TurnID:    turnID,
		UserID:    "user-1",
		SessionID: "sess-1",
		Input:     "plan a spring campaign",
		Response:  "Here is the plan.",
		History: []proto.Message{
			{Role: proto.RoleUser, Content: "plan a spring campaign"},
			{Role: proto.RoleAssistant, Content: "Here is the plan."},
		},
		Status:      proto.StateDone,
		Rounds:      2,
		CreatedAt:   now.Add(-3 * time.Second),
		CompletedAt: now,
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("turn-1")
	require.NoError(t, store.Save(ctx, rec))

	got, found, err := store.Get(ctx, "turn-1")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, rec.Input, got.Input)
	assert.Equal(t, rec.Response, got.Response)
	assert.Equal(t, proto.StateDone, got.Status)
	assert.Equal(t, 2, got.Rounds)
	require.Len(t, got.History, 2)
	assert.Equal(t, proto.RoleAssistant, got.History[1].Role)
	assert.True(t, rec.CompletedAt.Equal(got.CompletedAt))
}

func TestSaveIsIdempotentPerTurn(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := sampleRecord("turn-1")
	require.NoError(t, store.Save(ctx, first))

	// A retried save with different content must not overwrite or error.
	second := sampleRecord("turn-1")
	second.Response = "a different response from a retry"
	require.NoError(t, store.Save(ctx, second))
	require.NoError(t, store.Save(ctx, second))

	got, found, err := store.Get(ctx, "turn-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Here is the plan.", got.Response)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveRejectsMissingTurnID(t *testing.T) {
	store := openTestStore(t)

	rec := sampleRecord("")
	err := store.Save(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, faults.KindCheckpoint, faults.KindOf(err))
}

func TestGetMissingTurn(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.Get(context.Background(), "no-such-turn")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBySessionOrdersByCompletion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"turn-b", "turn-a", "turn-c"} {
		rec := sampleRecord(id)
		rec.CompletedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Save(ctx, rec))
	}

	other := sampleRecord("turn-other")
	other.SessionID = "sess-2"
	require.NoError(t, store.Save(ctx, other))

	records, err := store.BySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "turn-b", records[0].TurnID)
	assert.Equal(t, "turn-c", records[2].TurnID)
}

func TestReopenPreservesRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turns.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleRecord("turn-1")))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	_, found, err := reopened.Get(ctx, "turn-1")
	require.NoError(t, err)
	assert.True(t, found)
}
