package device

import "sort"

// StringSet is an unordered set of strings used for device tags and
// devlinks. The zero value is not usable; call NewStringSet.
type StringSet struct {
	items map[string]struct{}
}

// NewStringSet returns a set containing the given values.
func NewStringSet(values ...string) *StringSet {
	s := &StringSet{items: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.items[v] = struct{}{}
	}
	return s
}

// Add inserts value into the set.
func (s *StringSet) Add(value string) {
	s.items[value] = struct{}{}
}

// Remove deletes value from the set; removing an absent value is a no-op.
func (s *StringSet) Remove(value string) {
	delete(s.items, value)
}

// Clear removes all values.
func (s *StringSet) Clear() {
	s.items = make(map[string]struct{})
}

// Has reports whether value is in the set.
func (s *StringSet) Has(value string) bool {
	_, ok := s.items[value]
	return ok
}

// Len returns the number of values in the set.
func (s *StringSet) Len() int {
	return len(s.items)
}

// Values returns the set's contents in sorted order.
func (s *StringSet) Values() []string {
	out := make([]string, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
