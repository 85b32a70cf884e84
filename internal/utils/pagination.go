package utils

// Page is one page of a listing together with its navigation metadata.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Page     int   `json:"page"`      // starts at 1
	PageSize int   `json:"page_size"` // items per page
	HasNext  bool  `json:"has_next"`
	HasPrev  bool  `json:"has_prev"`
	Total    int64 `json:"total"` // across all pages
}

// NewPage wraps a page fetched from storage. total is the size of the whole
// result set; page and pageSize must already be normalised.
func NewPage[T any](items []T, total int64, page, pageSize int) Page[T] {
	if items == nil {
		items = []T{}
	}
	if page <= 0 {
		page = 1
	}
	end := int64((page-1)*pageSize + len(items))

	return Page[T]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		HasNext:  end < total,
		HasPrev:  page > 1,
		Total:    total,
	}
}
