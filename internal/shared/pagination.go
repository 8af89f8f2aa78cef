package shared

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a normalised page/limit pair.
type Page struct {
	Page  int
	Limit int
}

// NewPage clamps page to >= 1 and limit to [1, MaxPageSize].
func NewPage(page, limit int) Page {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return Page{Page: page, Limit: limit}
}

// Offset returns the row offset for SQL queries.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(p Page, total int) Pagination {
	p = NewPage(p.Page, p.Limit)
	totalPages := int(math.Ceil(float64(total) / float64(p.Limit)))
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: totalPages}
}
