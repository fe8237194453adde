package models_test

import (
	"testing"

	"meshline/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_PasswordRoundTrip(t *testing.T) {
	user := &models.User{Username: "ada"}
	require.NoError(t, user.SetPassword("correct horse battery"))

	assert.NotEqual(t, "correct horse battery", user.PasswordHash)
	assert.True(t, user.CheckPassword("correct horse battery"))
	assert.False(t, user.CheckPassword("wrong password"))
	assert.False(t, user.CheckPassword(""))
}

func TestUser_HashesDiffer(t *testing.T) {
	a := &models.User{}
	b := &models.User{}
	require.NoError(t, a.SetPassword("same password"))
	require.NoError(t, b.SetPassword("same password"))

	// bcrypt salts per hash.
	assert.NotEqual(t, a.PasswordHash, b.PasswordHash)
}
