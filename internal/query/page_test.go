package query

import (
	"reflect"
	"testing"
)

func TestMergePages(t *testing.T) {
	t.Parallel()
	cached := Page[int]{Items: []int{1, 2, 3}, Page: 1, TotalPages: 3, TotalCount: 9}

	tests := []struct {
		name    string
		fetched Page[int]
		page    int
		want    []int
	}{
		{
			name:    "page one replaces",
			fetched: Page[int]{Items: []int{10, 11}, Page: 1, TotalPages: 1, TotalCount: 2},
			page:    1,
			want:    []int{10, 11},
		},
		{
			name:    "page zero treated as refresh",
			fetched: Page[int]{Items: []int{10}, Page: 1},
			page:    0,
			want:    []int{10},
		},
		{
			name:    "later page appends in order",
			fetched: Page[int]{Items: []int{4, 5, 6}, Page: 2, TotalPages: 3, TotalCount: 9},
			page:    2,
			want:    []int{1, 2, 3, 4, 5, 6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MergePages(cached, tt.fetched, tt.page)
			if !reflect.DeepEqual(got.Items, tt.want) {
				t.Errorf("items = %v, want %v", got.Items, tt.want)
			}
			// Pagination metadata always comes from the fresh response.
			if got.Page != tt.fetched.Page || got.TotalPages != tt.fetched.TotalPages {
				t.Errorf("metadata = (%d,%d), want (%d,%d)",
					got.Page, got.TotalPages, tt.fetched.Page, tt.fetched.TotalPages)
			}
		})
	}
}

func TestMergePages_AppendDoesNotMutateCached(t *testing.T) {
	t.Parallel()
	cached := Page[int]{Items: []int{1, 2}}
	fetched := Page[int]{Items: []int{3}}
	merged := MergePages(cached, fetched, 2)
	merged.Items[0] = 99
	if cached.Items[0] != 1 {
		t.Error("merge must copy, not alias, the cached slice")
	}
}
