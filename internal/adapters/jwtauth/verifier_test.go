package jwtauth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

const testSecret = "test-secret-0123456789"

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier(t *testing.T, mutate func(*config.AuthConfig)) *Verifier {
	t.Helper()
	cfg := config.AuthConfig{
		Mode:      config.AuthModeJWT,
		JWTSecret: testSecret,
		Issuer:    "https://idp.example.com",
		Audience:  "docpipe",
		Leeway:    30 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	v, err := NewVerifier(Options{Config: cfg, Now: func() time.Time { return testNow }})
	require.NoError(t, err)
	return v
}

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    "https://idp.example.com",
			Audience:  jwt.ClaimStrings{"docpipe"},
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
		Role: "patient",
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier(Options{Config: config.AuthConfig{JWTSecret: "  "}})
	assert.ErrorContains(t, err, "jwt secret is required")
}

func TestVerifier_Verify(t *testing.T) {
	v := newTestVerifier(t, nil)

	tests := []struct {
		name    string
		token   func() string
		want    model.Requester
		wantMsg string
	}{
		{
			name:  "valid patient",
			token: func() string { return sign(t, jwt.SigningMethodHS256, testSecret, validClaims()) },
			want:  model.Requester{ID: "user-42", Role: model.RolePatient},
		},
		{
			name: "role is case insensitive",
			token: func() string {
				c := validClaims()
				c.Role = "Compliance"
				return sign(t, jwt.SigningMethodHS512, testSecret, c)
			},
			want: model.Requester{ID: "user-42", Role: model.RoleCompliance},
		},
		{
			name: "expired within leeway",
			token: func() string {
				c := validClaims()
				c.ExpiresAt = jwt.NewNumericDate(testNow.Add(-10 * time.Second))
				return sign(t, jwt.SigningMethodHS256, testSecret, c)
			},
			want: model.Requester{ID: "user-42", Role: model.RolePatient},
		},
		{
			name: "expired",
			token: func() string {
				c := validClaims()
				c.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Hour))
				return sign(t, jwt.SigningMethodHS256, testSecret, c)
			},
			wantMsg: "token expired",
		},
		{
			name: "missing exp",
			token: func() string {
				c := validClaims()
				c.ExpiresAt = nil
				return sign(t, jwt.SigningMethodHS256, testSecret, c)
			},
			wantMsg: "invalid token",
		},
		{
			name:    "wrong secret",
			token:   func() string { return sign(t, jwt.SigningMethodHS256, "other-secret", validClaims()) },
			wantMsg: "invalid token",
		},
		{
			name: "wrong issuer",
			token: func() string {
				c := validClaims()
				c.Issuer = "https://evil.example.com"
				return sign(t, jwt.SigningMethodHS256, testSecret, c)
			},
			wantMsg: "invalid token",
		},
		{
			name: "wrong audience",
			token: func() string {
				c := validClaims()
				c.Audience = jwt.ClaimStrings{"billing-portal"}
				return sign(t, jwt.SigningMethodHS256, testSecret, c)
			},
			wantMsg: "invalid token",
		},
		{
			name: "unsigned",
			token: func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			},
			wantMsg: "invalid token",
		},
		{
			name: "no subject",
			token: func() string {
				c := validClaims()
				c.Subject = ""
				return sign(t, jwt.SigningMethodHS256, testSecret, c)
			},
			wantMsg: "token has no subject",
		},
		{
			name: "unknown role",
			token: func() string {
				c := validClaims()
				c.Role = "superuser"
				return sign(t, jwt.SigningMethodHS256, testSecret, c)
			},
			wantMsg: "token role is not recognized",
		},
		{
			name:    "garbage",
			token:   func() string { return "not-a-jwt" },
			wantMsg: "invalid token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tt.token())
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.True(t, apperrors.IsUnauthorized(err), "want unauthorized, got %v", err)
				assert.Contains(t, err.Error(), tt.wantMsg)
				assert.Equal(t, model.Requester{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifier_IssueRoundTrip(t *testing.T) {
	v := newTestVerifier(t, func(c *config.AuthConfig) { c.Audience = "" })

	token, err := v.Issue(model.Requester{ID: "ops-1", Role: model.RoleOperations}, time.Minute)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, model.Requester{ID: "ops-1", Role: model.RoleOperations}, got)
}
