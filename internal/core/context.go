package core

import (
	"context"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

type requestInfoKey struct{}

// WithRequestInfo attaches the transport context recorded on audit events.
func WithRequestInfo(ctx context.Context, info model.RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the request info stored by WithRequestInfo.
func RequestInfoFromContext(ctx context.Context) (model.RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(model.RequestInfo)
	return info, ok
}

type requesterKey struct{}

// WithRequester attaches the verified requester identity.
func WithRequester(ctx context.Context, r model.Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

// RequesterFromContext returns the requester stored by WithRequester.
func RequesterFromContext(ctx context.Context) (model.Requester, bool) {
	r, ok := ctx.Value(requesterKey{}).(model.Requester)
	return r, ok && r.ID != ""
}
