package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/protocol"
)

// AtomNIL is the sentinel passed to AddAtom to mean the IMAP NIL atom, not an empty string.
const AtomNIL = ""

// Builder accumulates a command's wire arguments incrementally: a sequence of text fragments
// and, once a literal is added, interleaved byte blobs. It never partially applies a failed
// operation.
type Builder struct {
	parts []protocol.Part
	depth int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// appendText merges s into the last fragment if it is plain text, separated by a space;
// otherwise it starts a new fragment. This keeps consecutive atoms on one wire segment while
// literal blobs stay as their own fragment.
func (b *Builder) appendText(s string) {
	if n := len(b.parts); n > 0 && b.parts[n-1].Bytes == nil {
		cur := b.parts[n-1].Text
		if cur == "" || cur[len(cur)-1] == '(' {
			b.parts[n-1].Text = cur + s
		} else {
			b.parts[n-1].Text = cur + " " + s
		}
		return
	}
	b.parts = append(b.parts, protocol.Part{Text: s})
}

// attachRight appends s directly to the last text fragment with no separating space, used for
// the closing ")" of a list.
func (b *Builder) attachRight(s string) {
	if n := len(b.parts); n > 0 && b.parts[n-1].Bytes == nil {
		b.parts[n-1].Text += s
		return
	}
	b.parts = append(b.parts, protocol.Part{Text: s})
}

func isAtomByte(c byte) bool {
	return c > 0x20 && c < 0x7f && c != '"' && c != '\\' && c != '(' && c != ')' && c != '{' && c != ' '
}

// AddAtom appends a bare atom. AtomNIL (the empty string) appends the literal NIL.
func (b *Builder) AddAtom(s string) *imaperr.Error {
	if s == AtomNIL {
		b.appendText("NIL")
		return nil
	}
	for i := 0; i < len(s); i++ {
		if !isAtomByte(s[i]) {
			return imaperr.New(imaperr.InvalidArgument, "Builder.AddAtom", fmt.Sprintf("illegal atom byte in %q", s), nil)
		}
	}
	b.appendText(s)
	return nil
}

// AddRaw appends already-formatted text with no validation.
func (b *Builder) AddRaw(s string) *imaperr.Error {
	b.appendText(s)
	return nil
}

// AddSequence encodes a monotonic ascending unsigned list as an RFC 3501 sequence set:
// consecutive runs collapse to "lo:hi", discontinuous values are comma-separated.
func (b *Builder) AddSequence(ids []uint32) *imaperr.Error {
	if len(ids) == 0 {
		return imaperr.New(imaperr.InvalidArgument, "Builder.AddSequence", "empty sequence", nil)
	}
	var sb strings.Builder
	i := 0
	for i < len(ids) {
		start := ids[i]
		end := start
		j := i + 1
		for j < len(ids) && ids[j] == end+1 {
			end = ids[j]
			j++
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		if end == start {
			sb.WriteString(strconv.FormatUint(uint64(start), 10))
		} else {
			sb.WriteString(strconv.FormatUint(uint64(start), 10))
			sb.WriteByte(':')
			sb.WriteString(strconv.FormatUint(uint64(end), 10))
		}
		i = j
	}
	b.appendText(sb.String())
	return nil
}

func is7BitSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('"')
	return sb.String()
}

// AddQuoted appends s as a double-quoted string if it is 7-bit safe. Otherwise, if allowLiteral
// is set, it is sent as a literal byte blob instead; if not, the call fails.
func (b *Builder) AddQuoted(s string, allowLiteral bool) *imaperr.Error {
	if is7BitSafe(s) {
		b.appendText(quoteString(s))
		return nil
	}
	if !allowLiteral {
		return imaperr.New(imaperr.InvalidArgument, "Builder.AddQuoted", "8-bit content requires a literal", nil)
	}
	return b.AddLiteral([]byte(s))
}

// AddMailbox encodes a mailbox name with modified UTF-7 and appends it as a quoted string.
func (b *Builder) AddMailbox(s string) *imaperr.Error {
	encoded, err := EncodeMailbox(s)
	if err != nil {
		return imaperr.New(imaperr.InvalidArgument, "Builder.AddMailbox", "invalid mailbox name", err)
	}
	b.appendText(quoteString(encoded))
	return nil
}

// BeginList opens a parenthesised list.
func (b *Builder) BeginList() *imaperr.Error {
	b.depth++
	b.appendText("(")
	return nil
}

// EndList closes nested lists down to the given depth; EndList(0) closes all open lists.
func (b *Builder) EndList(level int) *imaperr.Error {
	if level < 0 {
		return imaperr.New(imaperr.InvalidArgument, "Builder.EndList", "negative level", nil)
	}
	for b.depth > level {
		b.attachRight(")")
		b.depth--
	}
	return nil
}

func (b *Builder) closeAll() *imaperr.Error {
	return b.EndList(0)
}

// AddList is a convenience for "(a b c)"; nil or empty items produce "()".
func (b *Builder) AddList(items []string) *imaperr.Error {
	target := b.depth
	if err := b.BeginList(); err != nil {
		return err
	}
	for _, it := range items {
		if err := b.AddRaw(it); err != nil {
			return err
		}
	}
	return b.EndList(target)
}

// AddLiteral promotes the command to a fragmented send and appends b as a literal byte blob.
func (b *Builder) AddLiteral(payload []byte) *imaperr.Error {
	b.parts = append(b.parts, protocol.Part{Bytes: payload})
	return nil
}
