package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(t *testing.T, b *Builder) string {
	t.Helper()
	var out string
	for _, p := range b.parts {
		if p.Bytes != nil {
			t.Fatalf("unexpected literal part in plain-text assertion")
		}
		out += p.Text
	}
	return out
}

func TestBuilder_AddAtomRejectsIllegalBytes(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddAtom("INBOX"))
	assert.Equal(t, "INBOX", text(t, b))

	b2 := NewBuilder()
	err := b2.AddAtom("has space")
	require.NotNil(t, err)
	assert.Equal(t, "InvalidArgument", err.Kind.String())
}

func TestBuilder_AddAtomNIL(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddAtom(AtomNIL))
	assert.Equal(t, "NIL", text(t, b))
}

func TestBuilder_AddSequence(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddSequence([]uint32{1, 2, 3, 5, 7, 8, 9}))
	assert.Equal(t, "1:3,5,7:9", text(t, b))
}

func TestBuilder_AddSequenceSingleton(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddSequence([]uint32{42}))
	assert.Equal(t, "42", text(t, b))
}

func TestBuilder_AddQuoted7Bit(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddQuoted(`say "hi"`, false))
	assert.Equal(t, `"say \"hi\""`, text(t, b))
}

func TestBuilder_AddQuoted8BitRequiresLiteral(t *testing.T) {
	b := NewBuilder()
	err := b.AddQuoted("café", false)
	require.NotNil(t, err)
	assert.Equal(t, "InvalidArgument", err.Kind.String())

	b2 := NewBuilder()
	require.Nil(t, b2.AddQuoted("café", true))
	require.Len(t, b2.parts, 1)
	assert.Equal(t, []byte("café"), b2.parts[0].Bytes)
}

func TestBuilder_BeginEndListNesting(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddAtom("FETCH"))
	require.Nil(t, b.AddSequence([]uint32{1}))
	require.Nil(t, b.BeginList())
	require.Nil(t, b.AddAtom("FLAGS"))
	require.Nil(t, b.AddRaw(`\Seen`))
	require.Nil(t, b.EndList(0))
	assert.Equal(t, `FETCH 1 (FLAGS \Seen)`, text(t, b))
}

func TestBuilder_AddListEmpty(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddList(nil))
	assert.Equal(t, "()", text(t, b))
}

func TestBuilder_AddListNested(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddAtom("STORE"))
	require.Nil(t, b.AddList([]string{`\Seen`, `\Deleted`}))
	assert.Equal(t, `STORE (\Seen \Deleted)`, text(t, b))
}

func TestBuilder_AddLiteralSwitchesToFragmentedSend(t *testing.T) {
	b := NewBuilder()
	require.Nil(t, b.AddAtom("APPEND"))
	require.Nil(t, b.AddMailbox("INBOX"))
	require.Nil(t, b.AddLiteral([]byte("body")))
	require.Len(t, b.parts, 2)
	assert.Nil(t, b.parts[0].Bytes)
	assert.Equal(t, []byte("body"), b.parts[1].Bytes)
}
