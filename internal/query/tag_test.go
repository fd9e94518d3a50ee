package query

import (
	"reflect"
	"testing"
)

func TestTagSet(t *testing.T) {
	t.Parallel()
	s := Tags(TagCart, TagOrder)

	if !s.Has(TagCart) || !s.Has(TagOrder) {
		t.Error("set should contain its members")
	}
	if s.Has(TagProduct) {
		t.Error("set should not contain TagProduct")
	}
	if got := s.List(); !reflect.DeepEqual(got, []Tag{TagCart, TagOrder}) {
		t.Errorf("List() = %v", got)
	}
	if got := s.String(); got != "Cart,Order" {
		t.Errorf("String() = %q", got)
	}
}

func TestTagSet_Intersects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b TagSet
		want bool
	}{
		{Tags(TagProduct), Tags(TagProduct), true},
		{Tags(TagSegment, TagAnalytics), Tags(TagAnalytics), true},
		{Tags(TagCart), Tags(TagOrder), false},
		{Tags(), Tags(TagCart), false},
	}
	for _, tt := range tests {
		if got := tt.a.Intersects(tt.b); got != tt.want {
			t.Errorf("%q.Intersects(%q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
