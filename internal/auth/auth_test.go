package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("grandma123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "grandma123"))
	assert.False(t, CheckPassword(hash, "grandpa123"))
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := MakeToken(42, secret)
	require.NoError(t, err)

	c, err := ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.UserID)
}

func TestParseTokenRejects(t *testing.T) {
	good, _ := MakeToken(7, secret)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredRaw, _ := expired.SignedString([]byte(secret))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 7})
	noneRaw, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name string
		raw  string
		key  string
	}{
		{"wrong secret", good, "other"},
		{"expired", expiredRaw, secret},
		{"alg none", noneRaw, secret},
		{"garbage", "not.a.token", secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.raw, tt.key)
			assert.Error(t, err)
		})
	}
}

func TestRefreshTokenHash(t *testing.T) {
	raw, hash, err := GenerateRefreshToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, hash, HashRefreshToken(raw))

	raw2, _, _ := GenerateRefreshToken()
	assert.NotEqual(t, raw, raw2)
}
