package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the lifetime of issued session tokens.
const TokenTTL = 24 * time.Hour

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload.
type Claims struct {
	UserID string      `json:"userId"`
	Kind   AccountKind `json:"type"`
	Email  string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies session tokens with a shared HMAC secret.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec creates a codec for the given secret.
func NewTokenCodec(secret []byte) *TokenCodec {
	return &TokenCodec{secret: secret, now: time.Now}
}

// WithClock returns a copy of the codec that reads time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	return &TokenCodec{secret: c.secret, now: now}
}

// Sign issues a token for p that expires TokenTTL from now.
func (c *TokenCodec) Sign(p Principal) (string, error) {
	if p.UserID == "" {
		return "", fmt.Errorf("sign token: empty user id")
	}
	issued := c.now()
	claims := Claims{
		UserID: p.UserID,
		Kind:   p.Kind,
		Email:  p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its principal.
// Every failure wraps ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (*Principal, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}

	return &Principal{UserID: claims.UserID, Kind: claims.Kind, Email: claims.Email}, nil
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// LinkTokenLength is the length of email verification and reset tokens.
const LinkTokenLength = 32

// RandomString returns a cryptographically random alphanumeric string.
func RandomString(length int) (string, error) {
	max := big.NewInt(int64(len(alphanumeric)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		out[i] = alphanumeric[n.Int64()]
	}
	return string(out), nil
}
