package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService() *AuthService {
	return NewAuthService("test-secret-0123456789abcdef", time.Hour, 24*time.Hour)
}

func TestAuthRegisterAndLogin(t *testing.T) {
	svc := newAuthService()

	user, err := svc.Register("alice", "alice@example.com", "s3cure-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := svc.Login("alice", "s3cure-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestAuthRegisterRejectsDuplicateCaseInsensitive(t *testing.T) {
	svc := newAuthService()

	_, err := svc.Register("alice", "alice@example.com", "s3cure-pass")
	require.NoError(t, err)

	_, err = svc.Register("ALICE", "other@example.com", "another-pass")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestAuthRegisterRejectsBadInput(t *testing.T) {
	svc := newAuthService()

	_, err := svc.Register("a", "alice@example.com", "s3cure-pass")
	assert.Error(t, err, "too short username")

	_, err = svc.Register("alice", "not-an-email", "s3cure-pass")
	assert.Error(t, err, "bad email")

	_, err = svc.Register("alice", "alice@example.com", "short")
	assert.Error(t, err, "weak password")
}

func TestAuthLoginWrongPassword(t *testing.T) {
	svc := newAuthService()

	_, err := svc.Register("alice", "alice@example.com", "s3cure-pass")
	require.NoError(t, err)

	_, err = svc.Login("alice", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("nobody", "s3cure-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthLoginIsCaseInsensitiveOnUsername(t *testing.T) {
	svc := newAuthService()

	_, err := svc.Register("Alice", "alice@example.com", "s3cure-pass")
	require.NoError(t, err)

	got, err := svc.Login("alice", "s3cure-pass")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Username)
}

func TestAuthTokenRoundTrip(t *testing.T) {
	svc := newAuthService()

	token, err := svc.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestAuthExpiredTokenRejected(t *testing.T) {
	svc := NewAuthService("test-secret-0123456789abcdef", -time.Minute, 24*time.Hour)

	token, err := svc.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthGarbageTokenRejected(t *testing.T) {
	svc := newAuthService()

	_, err := svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthWrongSecretRejected(t *testing.T) {
	issuer := newAuthService()
	verifier := NewAuthService("a-completely-different-secret", time.Hour, 24*time.Hour)

	token, err := issuer.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthRejectsNonHMACSigningMethod(t *testing.T) {
	svc := newAuthService()

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID:   "user-1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthTokenTypesAreNotInterchangeable(t *testing.T) {
	svc := newAuthService()

	access, err := svc.GenerateToken("user-1", "alice")
	require.NoError(t, err)
	refresh, err := svc.GenerateRefreshToken("user-1")
	require.NoError(t, err)

	_, err = svc.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthRefreshTokenRoundTrip(t *testing.T) {
	svc := newAuthService()

	token, err := svc.GenerateRefreshToken("user-1")
	require.NoError(t, err)

	claims, err := svc.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, "user-1", claims.UserID)
	assert.Empty(t, claims.Username)
}
