// Package pagination slices ordered sequences into bounded pages.
// Every listing endpoint goes through it.
package pagination

// Page is one page of results plus the metadata callers need to paginate.
type Page[T any] struct {
	Items       []T  `json:"items"`
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Paginate slices items into the requested 1-indexed page. The page size is
// clamped to [1, maxPageSize] and the page number to [1, totalPages];
// totalPages is at least 1 even for empty input.
func Paginate[T any](items []T, page, pageSize, maxPageSize int) Page[T] {
	if maxPageSize < 1 {
		maxPageSize = 1
	}
	pageSize = min(max(1, pageSize), maxPageSize)
	page = max(1, page)

	total := len(items)
	totalPages := 1
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	page = min(page, totalPages)

	start := (page - 1) * pageSize
	end := min(start+pageSize, total)
	if start > total {
		start = total
	}

	return Page[T]{
		Items:       items[start:end],
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}
