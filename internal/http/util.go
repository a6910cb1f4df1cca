package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-docpipe/internal/domain/model"
	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// parsePageRequest reads the cursor and limit query params. The limit is
// clamped by model.PageRequest; a non-numeric limit is a validation error.
func parsePageRequest(r *http.Request) (model.PageRequest, error) {
	q := r.URL.Query()
	page := model.PageRequest{Cursor: strings.TrimSpace(q.Get("cursor"))}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, apperrors.ValidationField("limit", "limit must be a number")
		}
		page.Limit = n
	}
	page.Limit = page.EffectiveLimit()
	return page, nil
}

// parseTimeQuery parses an optional RFC 3339 timestamp query param.
func parseTimeQuery(r *http.Request, key string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperrors.ValidationField(key, key+" must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func parseDocumentFilter(r *http.Request) (model.DocumentFilter, error) {
	var f model.DocumentFilter
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("document_type")); v != "" {
		t, err := model.ParseDocumentType(v)
		if err != nil {
			return f, apperrors.ValidationField("document_type", err.Error())
		}
		f.DocumentType = &t
	}
	if v := strings.TrimSpace(q.Get("scan_status")); v != "" {
		st := model.ScanStatus(strings.ToLower(v))
		if !st.Valid() {
			return f, apperrors.ValidationField("scan_status", "unknown scan status")
		}
		f.ScanStatus = &st
	}
	return f, nil
}
