package query

// Page is a single page of a paginated list response, plus the
// accumulated form held in the cache for infinite-scroll endpoints.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	TotalCount int `json:"total_count"`
}

// MergePages combines a newly fetched page with the cached sequence.
// Page 1 replaces the cached items wholesale (pull-to-refresh and
// filter-change semantics, no stale tail pages); any later page appends
// in order.
func MergePages[T any](cached, fetched Page[T], page int) Page[T] {
	if page <= 1 {
		return fetched
	}
	merged := fetched
	merged.Items = make([]T, 0, len(cached.Items)+len(fetched.Items))
	merged.Items = append(merged.Items, cached.Items...)
	merged.Items = append(merged.Items, fetched.Items...)
	return merged
}
