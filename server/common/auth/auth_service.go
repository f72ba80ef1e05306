package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token has no subject")
)

type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// CallerID is the authenticated identity: the registered subject, or the
// legacy user_id claim for tokens minted without one.
func (c *Claims) CallerID() string {
	if sub := strings.TrimSpace(c.Subject); sub != "" {
		return sub
	}
	return strings.TrimSpace(c.UserID)
}

type Options struct {
	Secret     string
	TTLMinutes int
	// JWKSURL switches verification to asymmetric keys fetched from the issuer.
	JWKSURL  string
	Audience string
	Issuer   string
}

type Service struct {
	secret   []byte
	ttl      time.Duration
	jwks     keyfunc.Keyfunc
	audience string
	issuer   string
}

func NewService(ctx context.Context, opts Options) (*Service, error) {
	s := &Service{
		secret:   []byte(opts.Secret),
		ttl:      time.Duration(opts.TTLMinutes) * time.Minute,
		audience: strings.TrimSpace(opts.Audience),
		issuer:   strings.TrimSpace(opts.Issuer),
	}
	if url := strings.TrimSpace(opts.JWKSURL); url != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{url})
		if err != nil {
			return nil, fmt.Errorf("load jwks %s: %w", url, err)
		}
		s.jwks = k
		return s, nil
	}
	if len(s.secret) == 0 {
		return nil, errors.New("jwt secret or jwks url is required")
	}
	return s, nil
}

// GenerateToken mints an HS256 token for the given caller. It is only usable in
// shared-secret mode and exists for development and tests.
func (s *Service) GenerateToken(callerID, email string) (string, error) {
	if s.jwks != nil {
		return "", errors.New("token minting is disabled when verifying with jwks")
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   callerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	if s.issuer != "" {
		claims.Issuer = s.issuer
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(ctx context.Context, token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var keyFunc jwt.Keyfunc
	if s.jwks != nil {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "ES256"}))
		keyFunc = s.jwks.KeyfuncCtx(ctx)
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		keyFunc = func(*jwt.Token) (any, error) { return s.secret, nil }
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.CallerID() == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// ParseAuthContext returns the caller id and email carried by a bearer token.
func (s *Service) ParseAuthContext(ctx context.Context, token string) (string, string, error) {
	claims, err := s.ParseToken(ctx, token)
	if err != nil {
		return "", "", err
	}
	return claims.CallerID(), claims.Email, nil
}
