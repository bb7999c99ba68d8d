package grantd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScopes(t *testing.T) {
	set := ParseScopes("profile/read profile/write email")
	assert.Len(t, set, 3)
	assert.True(t, set.Contains("profile/read"))
	assert.True(t, set.Contains("email"))
	assert.False(t, set.Contains("admin"))
}

func TestParseScopesEmpty(t *testing.T) {
	assert.Empty(t, ParseScopes(""))
	assert.Empty(t, ParseScopes("   "))
}

func TestParseScopesDeduplicates(t *testing.T) {
	set := ParseScopes("email email email")
	assert.Len(t, set, 1)
}

func TestScopeSetRoundTrip(t *testing.T) {
	original := NewScopeSet("c", "a", "b")
	decoded := ParseScopes(original.String())
	assert.Equal(t, original, decoded)
}

func TestScopeSetStringSorted(t *testing.T) {
	set := NewScopeSet("zeta", "alpha", "mid")
	assert.Equal(t, "alpha mid zeta", set.String())
}

func TestScopeSetIntersect(t *testing.T) {
	requested := NewScopeSet("profile/read", "email")
	permitted := NewScopeSet("profile/read", "admin")

	granted := permitted.Intersect(requested)
	assert.True(t, granted.Contains("profile/read"))
	assert.False(t, granted.Contains("admin"))
	assert.False(t, granted.Contains("email"))
}

func TestScopeSetSubsetOf(t *testing.T) {
	assert.True(t, NewScopeSet("a").SubsetOf(NewScopeSet("a", "b")))
	assert.True(t, NewScopeSet().SubsetOf(NewScopeSet("a")))
	assert.False(t, NewScopeSet("a", "c").SubsetOf(NewScopeSet("a", "b")))
}

func TestScopeSetCloneIsIndependent(t *testing.T) {
	original := NewScopeSet("a")
	clone := original.Clone()
	clone["b"] = struct{}{}

	assert.False(t, original.Contains("b"))
}
