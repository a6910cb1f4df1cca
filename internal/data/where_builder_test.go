package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhereBuilder(t *testing.T) {
	var w whereBuilder
	assert.Empty(t, w.sql())

	w.add("owner_id = ?", "u1")
	w.addIf(false, "document_type = ?", "skipped")
	w.addIf(true, "(created_at, id) < (?, ?)", "t", "id")
	limit := w.next(5)

	assert.Equal(t, "WHERE owner_id = $1 AND (created_at, id) < ($2, $3)", w.sql())
	assert.Equal(t, "$4", limit)
	assert.Equal(t, []any{"u1", "t", "id", 5}, w.args)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now \\ ok`, escapeLike(`50% off_now \ ok`))
	assert.Equal(t, "plain", escapeLike("plain"))
}
