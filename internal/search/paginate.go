package search

import "github.com/david/car-finder/internal/models"

// PageView is one window over an ordered SearchResult.
type PageView struct {
	Listings   []models.ScoredListing `json:"listings"`
	UsedTier   int                    `json:"used_tier"`
	TotalCount int                    `json:"total_count"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int                    `json:"total_pages"`
}

// Paginate slices res into 1-based pages. A non-positive pageSize falls back
// to defaultSize; an out-of-range page clamps into [1, totalPages] rather
// than erroring. totalPages is never below 1, so an empty result still
// renders as one empty page.
func Paginate(res *SearchResult, page, pageSize, defaultSize int) PageView {
	if pageSize <= 0 {
		pageSize = defaultSize
	}

	total := res.TotalCount
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return PageView{
		Listings:   res.Listings[start:end],
		UsedTier:   res.UsedTier,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// Session holds criterion-scoped page state for a stateful caller (a UI
// session, a saved search). Page position survives repeat requests with the
// same filters and resets to 1 the moment any criterion changes.
type Session struct {
	fingerprint string
	page        int
}

// Page returns the effective page for criteria c. A requested page > 0 wins
// and is remembered; requested <= 0 means "wherever I was", which is page 1
// if the criteria changed since the last call.
func (s *Session) Page(c FilterCriteria, requested int) int {
	fp := c.Fingerprint()
	if fp != s.fingerprint {
		s.fingerprint = fp
		s.page = 1
	}
	if requested > 0 {
		s.page = requested
	}
	return s.page
}
