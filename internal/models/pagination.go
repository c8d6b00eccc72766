package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Paginate slices a sorted result set. A zero pageSize returns everything.
func Paginate[T any](items []T, page, pageSize int) ([]T, *Pagination) {
	if pageSize <= 0 {
		return items, nil
	}
	if page <= 0 {
		page = 1
	}
	meta := &Pagination{Page: page, PageSize: pageSize, TotalCount: len(items)}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}, meta
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], meta
}
