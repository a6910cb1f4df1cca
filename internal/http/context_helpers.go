package httpx

import (
	"context"
	"net/http"

	"github.com/target/mmk-docpipe/internal/core"
	"github.com/target/mmk-docpipe/internal/domain/model"
)

// RequestIDFromContext returns the id assigned by RequestContext, or "".
func RequestIDFromContext(ctx context.Context) string {
	info, ok := core.RequestInfoFromContext(ctx)
	if !ok {
		return ""
	}
	return info.RequestID
}

// requesterFrom returns the verified requester. Routes under /api always run
// behind RequireRequester, so a missing requester is an unauthorized request.
func requesterFrom(r *http.Request) (model.Requester, bool) {
	return core.RequesterFromContext(r.Context())
}
