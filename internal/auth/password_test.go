package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	hash, err := HashSecret("my-api-key")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "my-api-key", hash)
}

func TestCompareSecret(t *testing.T) {
	hash, _ := HashSecret("my-api-key")

	t.Run("correct secret", func(t *testing.T) {
		err := CompareSecret(hash, "my-api-key")
		assert.NoError(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := CompareSecret(hash, "wrong-key")
		assert.Error(t, err)
	})
}
