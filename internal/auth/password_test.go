package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formloom/formloom/internal/auth"
)

func TestHashPassword(t *testing.T) {
	hash, err := auth.HashPassword("s3cret-password")
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret-password", hash)
	assert.True(t, auth.CheckPassword("s3cret-password", hash))
	assert.False(t, auth.CheckPassword("wrong-password", hash))
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := auth.HashPassword("same-password")
	require.NoError(t, err)
	h2, err := auth.HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, auth.CheckPassword("same-password", h1))
	assert.True(t, auth.CheckPassword("same-password", h2))
}
