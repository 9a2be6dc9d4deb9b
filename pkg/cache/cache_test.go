package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	getErr error
	setErr error
}

func (s *failingStore) Get(string) (Entry, bool, error) { return Entry{}, false, s.getErr }
func (s *failingStore) Set(Entry) error                 { return s.setErr }
func (s *failingStore) Delete(string) error             { return nil }

func TestGetOrComputeHitSkipsCompute(t *testing.T) {
	c := New(NewMemoryStore(0))
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"score":42}`), nil
	}

	value, hit, err := c.GetOrCompute(ctx, "k1", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.JSONEq(t, `{"score":42}`, string(value))

	value, hit, err = c.GetOrCompute(ctx, "k1", time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"score":42}`, string(value))
	assert.Equal(t, 1, calls, "second lookup must be served from cache")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestGetOrComputeExpiryRecomputes(t *testing.T) {
	c := New(NewMemoryStore(0))
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`1`), nil
	}

	_, _, err := c.GetOrCompute(ctx, "k1", 10*time.Millisecond, compute)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, hit, err := c.GetOrCompute(ctx, "k1", 10*time.Millisecond, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestGetOrComputeDegradesOnStoreFailure(t *testing.T) {
	c := New(&failingStore{getErr: errors.New("store down"), setErr: errors.New("store down")})

	value, hit, err := c.GetOrCompute(context.Background(), "k1", time.Minute, func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`"computed"`), nil
	})

	require.NoError(t, err, "store failure must not block the caller")
	assert.False(t, hit)
	assert.Equal(t, `"computed"`, string(value))
	assert.Equal(t, int64(2), c.Stats().Degraded)
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	store := NewMemoryStore(0)
	c := New(store)

	boom := errors.New("upstream failed")
	_, _, err := c.GetOrCompute(context.Background(), "k1", time.Minute, func(context.Context) (json.RawMessage, error) {
		return nil, boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len(), "failed computes are not cached")
}

func TestMemoryStoreSweepRemovesExpired(t *testing.T) {
	store := NewMemoryStore(0)

	require.NoError(t, store.Set(Entry{Key: "live", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Set(Entry{Key: "dead", ExpiresAt: time.Now().Add(-time.Second)}))

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	_, found, err := store.Get("live")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemoryStoreEvictsSoonestWhenFull(t *testing.T) {
	store := NewMemoryStore(2)

	require.NoError(t, store.Set(Entry{Key: "a", ExpiresAt: time.Now().Add(time.Minute)}))
	require.NoError(t, store.Set(Entry{Key: "b", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Set(Entry{Key: "c", ExpiresAt: time.Now().Add(time.Hour)}))

	assert.Equal(t, 2, store.Len())
	_, found, _ := store.Get("a")
	assert.False(t, found, "entry closest to expiry is evicted first")
}

func TestKeyIsDeterministicAndNormalized(t *testing.T) {
	k1 := Key("competitor_analysis", map[string]any{"name": "Acme Corp", "depth": 3})
	k2 := Key("competitor_analysis", map[string]any{"depth": 3, "name": "  acme corp "})

	assert.Equal(t, k1, k2, "key ordering and string case must not matter")

	k3 := Key("competitor_analysis", map[string]any{"name": "other", "depth": 3})
	assert.NotEqual(t, k1, k3)

	k4 := Key("trend_snapshot", map[string]any{"name": "acme corp", "depth": 3})
	assert.NotEqual(t, k1, k4, "capability name is part of the key")
}
