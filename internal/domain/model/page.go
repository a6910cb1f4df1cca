package model

const (
	// DefaultPageLimit is used when a page request carries no limit.
	DefaultPageLimit = 50
	// MaxPageLimit caps the page size.
	MaxPageLimit = 100
)

// PageRequest is a cursor page request. Cursor is the id of the last row seen.
type PageRequest struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// EffectiveLimit clamps Limit to [1, MaxPageLimit], defaulting to DefaultPageLimit.
func (p PageRequest) EffectiveLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageLimit
	case p.Limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return p.Limit
	}
}

// Page is one page of results ordered newest first.
type Page[T any] struct {
	Items      []T    `json:"items"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NewPage trims a limit+1 result set to limit rows and derives the next cursor
// from the last retained row.
func NewPage[T any](rows []T, limit int, id func(T) string) *Page[T] {
	p := &Page[T]{Items: rows}
	if len(rows) > limit {
		p.Items = rows[:limit]
		p.HasMore = true
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	if p.HasMore && len(p.Items) > 0 {
		p.NextCursor = id(p.Items[len(p.Items)-1])
	}
	return p
}
