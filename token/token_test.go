package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Atom(t *testing.T) {
	toks := Parse("CAPABILITY")
	require.Len(t, toks, 1)
	assert.Equal(t, Text, toks[0].Type())
	assert.Equal(t, "CAPABILITY", toks[0].Text())
	assert.Equal(t, "CAPABILITY", toks[0].String())
}

func TestParse_Number(t *testing.T) {
	toks := Parse("42 EXISTS")
	require.Len(t, toks, 2)
	n, ok := toks[0].Number()
	require.True(t, ok)
	assert.Equal(t, uint32(42), n)
	assert.Equal(t, "EXISTS", toks[1].Text())
}

func TestParse_OversizeNumberDegradesToText(t *testing.T) {
	toks := Parse("99999999999999999999")
	require.Len(t, toks, 1)
	assert.Equal(t, Text, toks[0].Type())
	_, ok := toks[0].Number()
	assert.False(t, ok)
}

func TestParse_QuotedDistinguishesNilFromEmpty(t *testing.T) {
	toks := Parse(`"" NIL "a\"b"`)
	require.Len(t, toks, 3)
	s, ok := toks[0].QuotedText()
	require.True(t, ok)
	assert.Equal(t, "", s)

	_, ok = toks[1].QuotedText()
	assert.False(t, ok, "NIL is a bare atom, not a quoted string")
	assert.Equal(t, "NIL", toks[1].Text())

	s, ok = toks[2].QuotedText()
	require.True(t, ok)
	assert.Equal(t, `a"b`, s)
}

func TestParse_Bracketed(t *testing.T) {
	toks := Parse("[UIDVALIDITY 5] completed")
	require.Len(t, toks, 2)
	assert.Equal(t, Bracketed, toks[0].Type())
	assert.Equal(t, "UIDVALIDITY 5", toks[0].Text())
	assert.Equal(t, "[UIDVALIDITY 5]", toks[0].String())
}

func TestParse_LiteralMarker(t *testing.T) {
	toks := Parse("{13}")
	require.Len(t, toks, 1)
	assert.Equal(t, Literal, toks[0].Type())
	n, ok := toks[0].Number()
	require.True(t, ok)
	assert.Equal(t, uint32(13), n)
	assert.Equal(t, "{13}", toks[0].String())
}

func TestParse_NestedList(t *testing.T) {
	toks := Parse(`(\HasNoChildren) "/" INBOX`)
	require.Len(t, toks, 3)
	children, ok := toks[0].List()
	require.True(t, ok)
	require.Len(t, children, 1)
	assert.Equal(t, `\HasNoChildren`, children[0].Text())
	assert.Equal(t, `(\HasNoChildren)`, toks[0].String())

	s, ok := toks[1].QuotedText()
	require.True(t, ok)
	assert.Equal(t, "/", s)
	assert.Equal(t, "INBOX", toks[2].Text())
}

func TestParse_ListTextJoinsChildren(t *testing.T) {
	toks := Parse(`(FLAGS \Seen \Deleted)`)
	require.Len(t, toks, 1)
	assert.Equal(t, `FLAGS \Seen \Deleted`, toks[0].Text())
}

// TestParse_RoundTrip exercises the §8 property: parse(t.String())[0] equals t structurally,
// compared here via String() idempotency since Token has no exported equality helper.
func TestParse_RoundTrip(t *testing.T) {
	inputs := []string{
		`"hello world"`,
		`(\Seen \Answered)`,
		"{42}",
		"12345",
		"ATOM",
		"[PERMANENTFLAGS (\\Seen)]",
	}
	for _, in := range inputs {
		toks := Parse(in)
		require.Len(t, toks, 1, in)
		again := Parse(toks[0].String())
		require.Len(t, again, 1, in)
		assert.Equal(t, toks[0].String(), again[0].String(), in)
	}
}
