package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()

	_, err := LoadToken("https://farm.example.com")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, SaveToken("https://farm.example.com", "tok-1"))
	token, err := LoadToken("https://farm.example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// Tokens are scoped per server
	_, err = LoadToken("https://other.example.com")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, DeleteToken("https://farm.example.com"))
	require.NoError(t, DeleteToken("https://farm.example.com"), "deleting twice is a no-op")
}

func TestSlot(t *testing.T) {
	keyring.MockInit()
	slot := NewSlot(Default, "http://127.0.0.1:8080")

	token, err := slot.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, slot.Save("a"))
	require.NoError(t, slot.Save("b"))
	token, err = slot.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", token)

	require.NoError(t, slot.Delete())
	require.NoError(t, slot.Delete())
	token, err = slot.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, "http://127.0.0.1:8080", slot.Server())
}
