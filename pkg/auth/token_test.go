package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := NewTokenCodec(testSecret)

	tests := []Principal{
		{UserID: "u-1", Kind: KindAnonymous},
		{UserID: "u-2", Kind: KindEmail, Email: "grower@example.com"},
	}

	for _, p := range tests {
		t.Run(string(p.Kind), func(t *testing.T) {
			token, err := codec.Sign(p)
			require.NoError(t, err)
			assert.Len(t, strings.Split(token, "."), 3)

			got, err := codec.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, p, *got)
		})
	}
}

func TestTokenCodec_SignRejectsEmptyUser(t *testing.T) {
	_, err := NewTokenCodec(testSecret).Sign(Principal{Kind: KindEmail})
	assert.Error(t, err)
}

func TestTokenCodec_SignatureMutation(t *testing.T) {
	codec := NewTokenCodec(testSecret)
	token, err := codec.Sign(Principal{UserID: "u-1", Kind: KindEmail})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	sig := parts[2]
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	for i := 0; i < len(sig); i++ {
		replacement := byte('A')
		if sig[i] == 'A' {
			replacement = 'B'
		}
		mutated := sig[:i] + string(replacement) + sig[i+1:]
		_, err := codec.Verify(parts[0] + "." + parts[1] + "." + mutated)
		assert.ErrorIs(t, err, ErrInvalidToken, "mutation at %d accepted", i)
	}

	// Exhaust the final character, which carries padding bits.
	last := len(sig) - 1
	for _, c := range alphabet {
		if byte(c) == sig[last] {
			continue
		}
		mutated := sig[:last] + string(c)
		_, err := codec.Verify(parts[0] + "." + parts[1] + "." + mutated)
		assert.ErrorIs(t, err, ErrInvalidToken, "final char %q accepted", c)
	}
}

func TestTokenCodec_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-25 * time.Hour)
	past := NewTokenCodec(testSecret).WithClock(func() time.Time { return issuedAt })

	token, err := past.Sign(Principal{UserID: "u-1", Kind: KindEmail})
	require.NoError(t, err)

	_, err = NewTokenCodec(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Still valid just before expiry.
	almost := NewTokenCodec(testSecret).WithClock(func() time.Time { return issuedAt.Add(TokenTTL - time.Minute) })
	_, err = almost.Verify(token)
	assert.NoError(t, err)
}

func TestTokenCodec_Malformed(t *testing.T) {
	codec := NewTokenCodec(testSecret)
	enc := base64.RawURLEncoding.EncodeToString

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"non json payload", enc([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." + enc([]byte("not json")) + ".sig"},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenCodec_WrongSecret(t *testing.T) {
	token, err := NewTokenCodec(testSecret).Sign(Principal{UserID: "u-1", Kind: KindEmail})
	require.NoError(t, err)

	_, err = NewTokenCodec([]byte("another-secret-another-secret-xx")).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCodec_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		UserID: "u-1",
		Kind:   KindEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = NewTokenCodec(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewTokenCodec(testSecret).Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCodec_MissingUserID(t *testing.T) {
	claims := Claims{
		Kind: KindEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = NewTokenCodec(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRandomString(t *testing.T) {
	a, err := RandomString(LinkTokenLength)
	require.NoError(t, err)
	b, err := RandomString(LinkTokenLength)
	require.NoError(t, err)

	assert.Len(t, a, LinkTokenLength)
	assert.NotEqual(t, a, b)
	for _, c := range a {
		assert.Contains(t, alphanumeric, string(c))
	}
}
