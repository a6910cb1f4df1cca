package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column list from "Key (storage_key)=(...) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// tableNames maps tables to the nouns used in caller-facing messages.
var tableNames = map[string]string{
	"jobs":         "job",
	"documents":    "document",
	"audit_events": "audit event",
}

// MapDBError translates driver errors into AppError values:
//
//   - context deadline / cancellation → Timeout / Canceled
//   - pgx.ErrNoRows → NotFound
//   - unique violation → Conflict (with Field when derivable)
//   - foreign key violation → ForeignKey
//   - check / not-null violation → Validation
//   - connection-class failures → Unavailable
//
// Unrecognised errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "request was canceled")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "resource not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return Unavailable(err, "database unavailable")
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		e := Wrap(pgErr, ErrCodeConflict, "this value already exists")
		e.Field = uniqueField(pgErr)
		return e
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return Wrap(pgErr, ErrCodeForeignKey, "referenced "+tableNoun(pgErr.TableName)+" does not exist")
	case pgErr.Code == pgerrcode.CheckViolation, pgErr.Code == pgerrcode.NotNullViolation:
		e := Wrap(pgErr, ErrCodeValidation, "invalid value")
		if pgErr.ColumnName != "" {
			e.Field = pgErr.ColumnName
			e.Message = "invalid value for " + pgErr.ColumnName
		}
		return e
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code),
		pgErr.Code == pgerrcode.AdminShutdown,
		pgErr.Code == pgerrcode.CannotConnectNow:
		return Unavailable(pgErr, "database unavailable")
	default:
		return Wrap(pgErr, ErrCodeInternal, "a database error occurred")
	}
}

// uniqueField prefers the column metadata, then the detail message, then the
// constraint name ("documents_storage_key_key" → "storage_key").
func uniqueField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 && !strings.Contains(m[1], ",") {
		return m[1]
	}
	name := pgErr.ConstraintName
	if pgErr.TableName != "" {
		name = strings.TrimPrefix(name, pgErr.TableName+"_")
	}
	for _, suffix := range []string{"_key", "_unique", "_idx"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return ""
}

func tableNoun(table string) string {
	if n, ok := tableNames[strings.ToLower(strings.TrimSpace(table))]; ok {
		return n
	}
	if table == "" {
		return "record"
	}
	return strings.ReplaceAll(table, "_", " ")
}
