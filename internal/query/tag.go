package query

import "strings"

// Tag labels a category of server-side resource for bulk cache
// invalidation. The type is a closed enum: every query and mutation
// declares its tags against these constants, so a missed or misspelled
// declaration is a compile error rather than silently stale UI.
type Tag uint8

const (
	TagProduct Tag = iota
	TagCart
	TagOrder
	TagUser
	TagSegment
	TagAnalytics

	numTags
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagProduct:
		return "Product"
	case TagCart:
		return "Cart"
	case TagOrder:
		return "Order"
	case TagUser:
		return "User"
	case TagSegment:
		return "Segment"
	case TagAnalytics:
		return "Analytics"
	default:
		return "unknown"
	}
}

// TagSet is a bitmask over the closed tag enum.
type TagSet uint16

// Tags builds a TagSet from individual tags.
func Tags(tags ...Tag) TagSet {
	var s TagSet
	for _, t := range tags {
		s |= 1 << t
	}
	return s
}

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool {
	return s&(1<<t) != 0
}

// Intersects reports whether the sets share any tag. Invalidation is
// intersection based: a query providing {A,B} is invalidated by a
// mutation invalidating {B} alone.
func (s TagSet) Intersects(other TagSet) bool {
	return s&other != 0
}

// List returns the tags in the set in enum order.
func (s TagSet) List() []Tag {
	var out []Tag
	for t := Tag(0); t < numTags; t++ {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// String returns a comma-separated tag list.
func (s TagSet) String() string {
	var names []string
	for _, t := range s.List() {
		names = append(names, t.String())
	}
	return strings.Join(names, ",")
}
