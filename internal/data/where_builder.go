package data

import (
	"strconv"
	"strings"
)

// whereBuilder accumulates AND-ed conditions. Each "?" in a condition is
// replaced by the next positional placeholder.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (b *whereBuilder) add(cond string, vals ...any) {
	var sb strings.Builder
	i := 0
	for _, r := range cond {
		if r == '?' && i < len(vals) {
			b.args = append(b.args, vals[i])
			sb.WriteString("$" + strconv.Itoa(len(b.args)))
			i++
			continue
		}
		sb.WriteRune(r)
	}
	b.clauses = append(b.clauses, sb.String())
}

// addIf adds cond only when ok is true.
func (b *whereBuilder) addIf(ok bool, cond string, vals ...any) {
	if ok {
		b.add(cond, vals...)
	}
}

// next returns the placeholder for an argument appended after the conditions.
func (b *whereBuilder) next(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *whereBuilder) sql() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.clauses, " AND ")
}
