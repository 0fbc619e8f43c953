package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestVerify_ValidToken(t *testing.T) {
	token, err := GenerateToken(secret, "u1", "u1@example.com", "USER", time.Hour)
	require.NoError(t, err)

	identity, err := NewVerifier(secret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, "u1@example.com", identity.Email)
	assert.Equal(t, "USER", identity.Role)
}

func TestVerify_ExpiredToken(t *testing.T) {
	token, err := GenerateToken(secret, "u1", "u1@example.com", "USER", -time.Minute)
	require.NoError(t, err)

	_, err = NewVerifier(secret).Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := GenerateToken([]byte("other-secret"), "u1", "", "USER", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier(secret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_MissingToken(t *testing.T) {
	_, err := NewVerifier(secret).Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_GarbageToken(t *testing.T) {
	_, err := NewVerifier(secret).Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsUnexpectedSigningMethod(t *testing.T) {
	// alg=none tokens must never verify, whatever their claims say.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewVerifier(secret).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_SubjectFallback(t *testing.T) {
	// Tokens minted by older services carry only the registered subject.
	claims := Claims{
		Email: "u2@example.com",
		Role:  "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	identity, err := NewVerifier(secret).Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u2", identity.UserID)
}

func TestVerify_NoUsableIdentity(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = NewVerifier(secret).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}
