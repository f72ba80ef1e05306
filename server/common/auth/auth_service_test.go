package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Secret == "" {
		opts.Secret = "test-secret"
	}
	if opts.TTLMinutes == 0 {
		opts.TTLMinutes = 5
	}
	s, err := NewService(context.Background(), opts)
	require.NoError(t, err)
	return s
}

func TestNewServiceRequiresKeyMaterial(t *testing.T) {
	_, err := NewService(context.Background(), Options{})
	assert.Error(t, err)
}

func TestGenerateAndParse(t *testing.T) {
	s := newTestService(t, Options{})

	token, err := s.GenerateToken("user-1", "user@example.com")
	require.NoError(t, err)

	callerID, email, err := s.ParseAuthContext(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", callerID)
	assert.Equal(t, "user@example.com", email)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := newTestService(t, Options{Secret: "one"})
	verifier := newTestService(t, Options{Secret: "two"})

	token, err := issuer.GenerateToken("user-1", "")
	require.NoError(t, err)

	_, err = verifier.ParseToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	s := newTestService(t, Options{})
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = s.ParseToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRequiresSubject(t *testing.T) {
	s := newTestService(t, Options{})
	token, err := s.GenerateToken("", "")
	require.NoError(t, err)

	_, err = s.ParseToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestLegacyUserIDClaim(t *testing.T) {
	s := newTestService(t, Options{})
	claims := Claims{UserID: "legacy-user", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	parsed, err := s.ParseToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "legacy-user", parsed.CallerID())
}

func TestAudienceCheck(t *testing.T) {
	issuer := newTestService(t, Options{Audience: "mobile"})
	verifier := newTestService(t, Options{Audience: "authenticated"})

	token, err := issuer.GenerateToken("user-1", "")
	require.NoError(t, err)

	_, err = verifier.ParseToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.ParseToken(context.Background(), token)
	assert.NoError(t, err)
}
