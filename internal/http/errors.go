package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// statusFor maps an application error code to its HTTP status.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeForeignKey:
		return http.StatusConflict
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// classify resolves the code of err, treating bare context errors as timeouts
// and cancellations.
func classify(err error) apperrors.ErrorCode {
	if code := apperrors.GetCode(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return apperrors.ErrCodeCanceled
	default:
		return apperrors.ErrCodeInternal
	}
}

// WriteServiceError renders a service error. Client errors carry the
// application message; server errors are logged and answered generically.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := classify(err)
	status := statusFor(code)

	if status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err)
		msg := http.StatusText(status)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && code == apperrors.ErrCodeUnavailable {
			msg = appErr.Message
		}
		WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: errors.New(msg)})
		return
	}

	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(code),
		Err:     errors.New(msg),
		Field:   apperrors.GetField(err),
	})
}
