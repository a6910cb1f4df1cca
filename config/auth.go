package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents how API requesters are identified.
type AuthMode string

const (
	// AuthModeJWT verifies HMAC-signed bearer tokens.
	AuthModeJWT AuthMode = "jwt"
	// AuthModeMock accepts every request as the configured dev identity (development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "jwt", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: jwt, mock)", v)
	}
}

// DevAuthConfig controls the mock identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string `env:"USER_ID" envDefault:"dev-user"`
	Role   string `env:"ROLE"    envDefault:"admin"`
}

// AuthConfig groups requester identity configuration.
type AuthConfig struct {
	// Mode determines which verifier to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"jwt"`

	// JWTSecret is the HMAC key bearer tokens are signed with.
	JWTSecret string `env:"AUTH_JWT_SECRET"`

	// Issuer, when set, must match the token iss claim.
	Issuer string `env:"AUTH_ISSUER"`

	// Audience, when set, must appear in the token aud claim.
	Audience string `env:"AUTH_AUDIENCE"`

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration `env:"AUTH_LEEWAY" envDefault:"30s"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.JWTSecret = strings.TrimSpace(a.JWTSecret)
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
	if a.Leeway < 0 {
		a.Leeway = 0
	}
	if a.Leeway > 5*time.Minute {
		a.Leeway = 5 * time.Minute
	}
}
