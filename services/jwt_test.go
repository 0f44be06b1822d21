package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWT() *JWTService {
	return &JWTService{
		AccessTokenDuration: time.Hour,
		jwtSecretKey:        "test-secret",
	}
}

func TestJWTRoundTrip(t *testing.T) {
	svc := newTestJWT()

	token, err := svc.ToJWT("admin")
	require.NoError(t, err)

	userID, err := svc.VerifyJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", userID)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := newTestJWT().ToJWT("admin")
	require.NoError(t, err)

	other := &JWTService{AccessTokenDuration: time.Hour, jwtSecretKey: "different-secret"}
	_, err = other.VerifyJWTToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	svc := newTestJWT()
	svc.AccessTokenDuration = -time.Minute

	token, err := svc.ToJWT("admin")
	require.NoError(t, err)

	_, err = svc.VerifyJWTToken(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	svc := newTestJWT()

	token, err := svc.ExtractTokenFromHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = svc.ExtractTokenFromHeader("")
	assert.Error(t, err)

	_, err = svc.ExtractTokenFromHeader("Basic abc")
	assert.Error(t, err)
}

func TestGenerateTokenPair(t *testing.T) {
	svc := newTestJWT()

	pair, err := svc.GenerateTokenPair("admin")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)
}
