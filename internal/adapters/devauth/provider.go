package devauth

// Package devauth provides a simple, config-driven RequesterVerifier for local development.

import (
	"context"
	"errors"
	"strings"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// Provider implements ports.RequesterVerifier for local development.
// It ignores the bearer credential and returns the configured identity, so
// `curl -H "Authorization: Bearer dev"` is enough to call the API.
type Provider struct {
	identity model.Requester
}

// NewProvider constructs a dev auth provider from DevAuthConfig.
func NewProvider(cfg config.DevAuthConfig) (*Provider, error) {
	id := strings.TrimSpace(cfg.UserID)
	if id == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	role := model.Role(strings.ToLower(strings.TrimSpace(cfg.Role)))
	if !role.Valid() {
		return nil, errors.New("dev auth: Role is not a known role")
	}
	return &Provider{identity: model.Requester{ID: id, Role: role}}, nil
}

// Verify returns the configured identity for any non-empty token.
func (p *Provider) Verify(_ context.Context, token string) (model.Requester, error) {
	if strings.TrimSpace(token) == "" {
		return model.Requester{}, apperrors.Unauthorized("missing bearer token")
	}
	return p.identity, nil
}
