package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapDBError_Nil(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBError_ContextAndNoRows(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeCanceled},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{"no rows", pgx.ErrNoRows, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			assert.Equal(t, tt.want, GetCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMapDBError_UniqueViolationField(t *testing.T) {
	tests := []struct {
		name  string
		pgErr *pgconn.PgError
		want  string
	}{
		{
			name:  "column metadata",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "storage_key"},
			want:  "storage_key",
		},
		{
			name:  "detail message",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: `Key (storage_key)=(a/b/c.pdf) already exists.`},
			want:  "storage_key",
		},
		{
			name:  "multi-column detail is ambiguous",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: `Key (queue, id)=(a, b) already exists.`},
			want:  "",
		},
		{
			name:  "constraint name",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, TableName: "documents", ConstraintName: "documents_storage_key_key"},
			want:  "storage_key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			assert.True(t, IsConflict(err))
			assert.Equal(t, tt.want, GetField(err))
		})
	}
}

func TestMapDBError_ConstraintClasses(t *testing.T) {
	tests := []struct {
		name  string
		pgErr *pgconn.PgError
		want  ErrorCode
	}{
		{"foreign key", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, TableName: "documents"}, ErrCodeForeignKey},
		{"check", &pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "priority"}, ErrCodeValidation},
		{"not null", &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "owner_id"}, ErrCodeValidation},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, ErrCodeUnavailable},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, ErrCodeUnavailable},
		{"other", &pgconn.PgError{Code: pgerrcode.DivisionByZero}, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(MapDBError(tt.pgErr)))
		})
	}
}

func TestMapDBError_ValidationCarriesColumn(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "priority"})
	assert.Equal(t, "priority", GetField(err))
}

func TestMapDBError_PassThrough(t *testing.T) {
	plain := errors.New("something else")
	assert.Equal(t, plain, MapDBError(plain))
}
