package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; the HTTP middleware consumes them.

import (
	"context"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// RequesterVerifier turns a bearer credential into a verified requester.
// Implementations return an Unauthorized AppError for any credential they reject.
type RequesterVerifier interface {
	Verify(ctx context.Context, token string) (model.Requester, error)
}
