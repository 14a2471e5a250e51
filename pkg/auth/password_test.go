package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastHasher() *PasswordHasher {
	h := NewPasswordHasher()
	h.Memory = 1024
	return h
}

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := fastHasher()

	hash, salt, err := h.Hash("correct horse battery")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=4$")
	assert.NotEmpty(t, salt)

	ok, err := h.Verify("correct horse battery", hash, salt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong password", hash, salt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHasher_SaltIsRandom(t *testing.T) {
	h := fastHasher()

	hash1, salt1, err := h.Hash("same-password")
	require.NoError(t, err)
	hash2, salt2, err := h.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, salt1, salt2)
	assert.NotEqual(t, hash1, hash2)

	// A hash does not verify with another user's salt.
	ok, err := h.Verify("same-password", hash1, salt2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHasher_VerifyUsesStoredParameters(t *testing.T) {
	hash, salt, err := fastHasher().Hash("password123")
	require.NoError(t, err)

	// A hasher configured differently still verifies older hashes.
	ok, err := NewPasswordHasher().Verify("password123", hash, salt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordHasher_Malformed(t *testing.T) {
	h := fastHasher()

	tests := []struct {
		name string
		hash string
		salt string
	}{
		{"empty", "", "c2FsdA"},
		{"wrong algorithm", "$bcrypt$v=19$m=1,t=1,p=1$abc", "c2FsdA"},
		{"bad params", "$argon2id$v=19$garbage$abc", "c2FsdA"},
		{"bad salt", "$argon2id$v=19$m=1024,t=1,p=4$YWJj", "!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Verify("password", tt.hash, tt.salt)
			assert.ErrorIs(t, err, ErrMalformedHash)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword(""))
	assert.Error(t, ValidatePassword("1234567"))
	assert.NoError(t, ValidatePassword("12345678"))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("a@b.co"))
	assert.True(t, ValidEmail("first.last@garden.example.org"))
	assert.False(t, ValidEmail("no-at-sign.com"))
	assert.False(t, ValidEmail("a@b"))
	assert.False(t, ValidEmail("a b@c.d"))
	assert.Equal(t, "admin@example.com", NormalizeEmail("  Admin@Example.COM "))
}
