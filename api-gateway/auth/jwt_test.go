package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken("lab-01-id", "boots@lab-01.example.org", "lab")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "lab-01-id", claims.ID)
	assert.Equal(t, "boots@lab-01.example.org", claims.Email)
	assert.Equal(t, "lab", claims.Role)
	assert.Equal(t, "lab-01-id", claims.Subject)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := ValidateToken("not.a.token")
	assert.Error(t, err)

	_, err = ValidateToken("")
	assert.Error(t, err)
}
