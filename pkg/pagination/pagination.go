// Package pagination reads page/per_page query parameters and shapes one
// page of a listing for the response.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params selects one page. Page is 1-based.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// DefaultParams is the first page at DefaultPerPage.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: DefaultPerPage}
}

// Offset is the number of rows preceding the page.
func (p Params) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// FromRequest parses page and per_page. Garbage or non-positive values fall
// back to the defaults; per_page is clamped to MaxPerPage.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	return Params{
		Page:    positiveOr(q.Get("page"), 1),
		PerPage: min(positiveOr(q.Get("per_page"), DefaultPerPage), MaxPerPage),
	}
}

func positiveOr(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// Result is one page plus enough totals for a client to walk the rest.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult never encodes data as null.
func NewResult[T any](data []T, total int, p Params) Result[T] {
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if data == nil {
		data = make([]T, 0)
	}
	pages := (total + p.PerPage - 1) / p.PerPage
	return Result[T]{
		Data:       data,
		TotalCount: total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: pages,
		HasNext:    p.Page < pages,
		HasPrev:    p.Page > 1,
	}
}
