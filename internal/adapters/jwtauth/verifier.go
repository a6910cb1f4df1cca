// Package jwtauth verifies HMAC-signed bearer tokens issued by the identity
// provider and maps their claims onto model.Requester.
package jwtauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// Claims are the token claims understood by the pipeline. The subject is the
// requester id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Options configures a Verifier.
type Options struct {
	Config config.AuthConfig
	// Now overrides the clock used for exp/nbf checks.
	Now func() time.Time
}

// Verifier validates bearer tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	parser   *jwt.Parser
	now      func() time.Time
}

// NewVerifier builds a Verifier. The HMAC secret is required.
func NewVerifier(opts Options) (*Verifier, error) {
	cfg := opts.Config
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		parser:   jwt.NewParser(parserOpts...),
		now:      now,
	}, nil
}

// Verify parses and validates token and returns the requester it names.
func (v *Verifier) Verify(_ context.Context, token string) (model.Requester, error) {
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.Requester{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "token expired")
	case err != nil:
		return model.Requester{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "invalid token")
	case !parsed.Valid:
		return model.Requester{}, apperrors.Unauthorized("invalid token")
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return model.Requester{}, apperrors.Unauthorized("token has no subject")
	}
	role := model.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if !role.Valid() {
		return model.Requester{}, apperrors.Unauthorized("token role is not recognized")
	}
	return model.Requester{ID: claims.Subject, Role: role}, nil
}

// Issue signs a short-lived HS256 token for the requester. It backs the
// admin CLI and tests; production tokens come from the identity provider.
func (v *Verifier) Issue(r model.Requester, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   r.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(r.Role),
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
