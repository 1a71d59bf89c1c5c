package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-rt/corvus/filter"
)

func TestParse_EmptyMatchesEverything(t *testing.T) {
	f, err := filter.Parse("")
	require.NoError(t, err)
	assert.True(t, f.Matches(map[string]any{}))
	assert.True(t, f.Matches(map[string]any{"k": "v"}))
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		"(k=1",
		"k=1)",
		"(&(k=1)",
		"(k?1)",
		"(k<1)",
		"()",
	}
	for _, s := range cases {
		_, err := filter.Parse(s)
		assert.Errorf(t, err, "expected parse error for %q", s)
	}
}

func TestMatches_Equality(t *testing.T) {
	f := filter.MustParse("(k=1)")
	assert.True(t, f.Matches(map[string]any{"k": "1"}))
	assert.False(t, f.Matches(map[string]any{"k": "2"}))
	assert.False(t, f.Matches(map[string]any{}))
}

func TestMatches_Wildcard(t *testing.T) {
	f := filter.MustParse("(k=fo*ar)")
	assert.True(t, f.Matches(map[string]any{"k": "foobar"}))
	assert.False(t, f.Matches(map[string]any{"k": "barfoo"}))
}

func TestMatches_Present(t *testing.T) {
	f := filter.MustParse("(k=*)")
	assert.True(t, f.Matches(map[string]any{"k": "anything"}))
	assert.False(t, f.Matches(map[string]any{}))
}

func TestMatches_AndOrNot(t *testing.T) {
	and := filter.MustParse("(&(a=1)(b=2))")
	assert.True(t, and.Matches(map[string]any{"a": "1", "b": "2"}))
	assert.False(t, and.Matches(map[string]any{"a": "1", "b": "3"}))

	or := filter.MustParse("(|(a=1)(b=2))")
	assert.True(t, or.Matches(map[string]any{"a": "1", "b": "9"}))
	assert.False(t, or.Matches(map[string]any{"a": "9", "b": "9"}))

	not := filter.MustParse("(!(a=1))")
	assert.True(t, not.Matches(map[string]any{"a": "2"}))
	assert.False(t, not.Matches(map[string]any{"a": "1"}))
}

func TestMatches_OrderedComparison(t *testing.T) {
	le := filter.MustParse("(rank<=5)")
	assert.True(t, le.Matches(map[string]any{"rank": "3"}))
	assert.False(t, le.Matches(map[string]any{"rank": "9"}))
	assert.False(t, le.Matches(map[string]any{}))

	ge := filter.MustParse("(rank>=5)")
	assert.True(t, ge.Matches(map[string]any{"rank": "9"}))
	assert.False(t, ge.Matches(map[string]any{"rank": "3"}))
}

func TestMatches_Approx(t *testing.T) {
	f := filter.MustParse("(name~=Hello   World)")
	assert.True(t, f.Matches(map[string]any{"name": "say hello world now"}))
	assert.False(t, f.Matches(map[string]any{"name": "goodbye"}))
}

func TestMatches_ObjectClass(t *testing.T) {
	f := filter.MustParse("(objectClass=IEcho)")
	assert.True(t, f.Matches(map[string]any{"objectClass": []string{"IEcho", "IOther"}}))
	assert.False(t, f.Matches(map[string]any{"objectClass": []string{"IOther"}}))

	present := filter.MustParse("(objectClass=*)")
	assert.True(t, present.Matches(map[string]any{"objectClass": []string{"IEcho"}}))
	assert.False(t, present.Matches(map[string]any{"objectClass": []string{}}))
}

func TestCombineAnd(t *testing.T) {
	a := filter.MustParse("(a=1)")
	b := filter.MustParse("(b=2)")

	assert.Nil(t, filter.CombineAnd(nil, nil))
	assert.Same(t, a, filter.CombineAnd(a, nil))

	combined := filter.CombineAnd(a, b)
	assert.True(t, combined.Matches(map[string]any{"a": "1", "b": "2"}))
	assert.False(t, combined.Matches(map[string]any{"a": "1", "b": "9"}))
}

func TestEscapeRoundTrip(t *testing.T) {
	literal := "a(b)c*d\\e"
	escaped := filter.Escape(literal)

	f, err := filter.Parse("(k=" + escaped + ")")
	require.NoError(t, err)
	assert.True(t, f.Matches(map[string]any{"k": literal}))
}
