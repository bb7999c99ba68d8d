package grantd

import (
	"sort"
	"strings"
)

// ScopeSet is a set of scope identifiers. The zero value (nil) is an empty
// set and is safe for all read operations.
type ScopeSet map[string]struct{}

// NewScopeSet builds a set from the given scope identifiers.
func NewScopeSet(ids ...string) ScopeSet {
	set := make(ScopeSet, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// ParseScopes decodes the space-delimited wire format used by the scope
// request parameter and the scope field of the token response. An empty or
// all-whitespace string decodes to an empty set.
func ParseScopes(raw string) ScopeSet {
	return NewScopeSet(strings.Fields(raw)...)
}

// String encodes the set back into the space-delimited wire format. The
// output is sorted so encoding is deterministic.
func (s ScopeSet) String() string {
	return strings.Join(s.List(), " ")
}

// List returns the scope identifiers in sorted order.
func (s ScopeSet) List() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports whether id is a member of the set.
func (s ScopeSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// SubsetOf reports whether every member of s is also a member of other.
func (s ScopeSet) SubsetOf(other ScopeSet) bool {
	for id := range s {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// Intersect returns the members present in both sets.
func (s ScopeSet) Intersect(other ScopeSet) ScopeSet {
	out := make(ScopeSet)
	for id := range s {
		if other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Clone returns an independent copy of the set.
func (s ScopeSet) Clone() ScopeSet {
	out := make(ScopeSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}
