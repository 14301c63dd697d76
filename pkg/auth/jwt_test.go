package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests"

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService(testSecret, time.Hour)

	token, err := svc.GenerateAccessToken("operator", "notifications")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
	assert.Equal(t, "notifications", claims.Scope)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("other-secret", time.Hour).GenerateAccessToken("operator", "")
	require.NoError(t, err)

	_, err = NewJWTService(testSecret, time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := &jwtService{
		secret: []byte(testSecret),
		issuer: DefaultIssuer,
		ttl:    time.Minute,
		now:    func() time.Time { return time.Now().Add(-time.Hour) },
	}
	token, err := svc.GenerateAccessToken("operator", "")
	require.NoError(t, err)

	_, err = NewJWTService(testSecret, time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsOtherIssuer(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "operator",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewJWTService(testSecret, time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := NewJWTService(testSecret, time.Hour).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
