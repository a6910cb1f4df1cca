// Package errors maps errors onto low-cardinality labels for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// Classify returns a label for err. Application errors are labelled by code,
// context errors by kind, anything else by its innermost concrete type.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case goerrors.Is(err, context.DeadlineExceeded):
		return string(apperrors.ErrCodeTimeout)
	case goerrors.Is(err, context.Canceled):
		return string(apperrors.ErrCodeCanceled)
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	for next := goerrors.Unwrap(err); next != nil; next = goerrors.Unwrap(next) {
		err = next
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
