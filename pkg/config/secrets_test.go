package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store := NewSecretStore(dir)
	assert.False(t, store.Exists())

	store.Set("ANTHROPIC_API_KEY", "sk-test-123")
	store.Set("OPENAI_API_KEY", "sk-test-456")
	require.NoError(t, store.Save("hunter2"))
	assert.True(t, store.Exists())

	fresh := NewSecretStore(dir)
	require.NoError(t, fresh.Unlock("hunter2"))

	key, err := fresh.Get("ANTHROPIC_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", key)
	assert.ElementsMatch(t, []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY"}, fresh.Names())
}

func TestSecretStoreWrongPassword(t *testing.T) {
	dir := t.TempDir()

	store := NewSecretStore(dir)
	store.Set("ANTHROPIC_API_KEY", "sk-test-123")
	require.NoError(t, store.Save("correct"))

	fresh := NewSecretStore(dir)
	err := fresh.Unlock("wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong password or corrupted")
}

func TestSecretStoreEnvFallback(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "env-key")

	store := NewSecretStore(t.TempDir())

	key, err := store.APIKeyFor("google")
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)

	// Providers without key requirements succeed with an empty key.
	key, err = store.APIKeyFor("ollama")
	require.NoError(t, err)
	assert.Empty(t, key)

	_, err = store.Get("DEFINITELY_NOT_SET_ANYWHERE")
	assert.Error(t, err)
}
