package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/adapters/devauth"
	"github.com/target/mmk-docpipe/internal/adapters/jwtauth"
	"github.com/target/mmk-docpipe/internal/ports"
)

// BuildVerifier creates the bearer token verifier for the configured auth mode.
//
//nolint:ireturn // the verifier implementation is chosen at runtime.
func BuildVerifier(cfg config.AuthConfig, logger *slog.Logger) (ports.RequesterVerifier, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(cfg.DevAuth)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Warn("mock auth enabled; every bearer token is accepted",
				"user_id", cfg.DevAuth.UserID,
				"role", cfg.DevAuth.Role)
		}
		return prov, nil

	case config.AuthModeJWT, "":
		v, err := jwtauth.NewVerifier(jwtauth.Options{Config: cfg})
		if err != nil {
			return nil, fmt.Errorf("create jwt verifier: %w", err)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
