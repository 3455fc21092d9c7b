package services

import (
	"strings"

	"gorm.io/gorm"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Page selects a window of a listing. Page numbers start at 1.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	p = p.normalize()
	return q.Offset((p.Page - 1) * p.Limit).Limit(p.Limit)
}

// Pagination is the listing metadata returned to clients.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

func NewPagination(p Page, total int64) Pagination {
	p = p.normalize()
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		pages++
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// Slugify lower-cases s and collapses every run of characters outside
// [a-z0-9] into a single dash.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
