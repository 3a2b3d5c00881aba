// Package token implements the single-pass tokeniser that turns one IMAP response line (the
// "message" part of a tagged or untagged reply, with literal markers already elided by the
// transport layer) into a tree of tokens: numbers, bare atoms, quoted strings, bracketed
// response codes, literal-size markers and parenthesised lists.
package token

import (
	"strconv"
	"strings"
)

// Type identifies the shape of a Token.
type Type int

const (
	// Number is a bare unsigned integer that fits into uint32.
	Number Type = iota
	// Text is a bare atom, or a number too large to fit uint32.
	Text
	// Quoted is a double-quoted string; NIL is represented separately, see QuotedText.
	Quoted
	// Bracketed is the text inside a "[...]" response code, not recursively tokenised.
	Bracketed
	// Literal is a "{n}" marker; the blob itself travels on the reply record, not the token.
	Literal
	// List is a parenthesised sequence of tokens.
	List
)

// Token is an immutable node of the parsed response tree.
type Token struct {
	typ      Type
	number   uint32
	text     string
	isQuoted bool // true if typ == Quoted; distinguishes NIL (isQuoted=false, text="NIL") from ""
	list     []*Token
}

// Type returns the token's shape.
func (t *Token) Type() Type { return t.typ }

// Number returns the numeric value and true if the token is a Number, or a Literal whose size
// fits into uint32. It returns (0, false) otherwise.
func (t *Token) Number() (uint32, bool) {
	if t.typ == Number || t.typ == Literal {
		return t.number, true
	}
	return 0, false
}

// Text returns a string rendering of the token's content. It never returns an unusable value:
// for a List it joins the children's Text() with single spaces.
func (t *Token) Text() string {
	if t.typ == List {
		parts := make([]string, len(t.list))
		for i, c := range t.list {
			parts[i] = c.Text()
		}
		return strings.Join(parts, " ")
	}
	if t.typ == Number {
		return strconv.FormatUint(uint64(t.number), 10)
	}
	return t.text
}

// QuotedText returns the unescaped string content and true only if the token is a Quoted
// string. This distinguishes the IMAP atom NIL (ok=false) from an empty quoted string ""
// (ok=true, s="").
func (t *Token) QuotedText() (s string, ok bool) {
	if t.typ != Quoted {
		return "", false
	}
	return t.text, true
}

// List returns the child tokens and true only if the token is a List.
func (t *Token) List() ([]*Token, bool) {
	if t.typ != List {
		return nil, false
	}
	return t.list, true
}

// String round-trips the token back into wire syntax: quotes, brackets and braces are
// re-added as appropriate.
func (t *Token) String() string {
	switch t.typ {
	case Number:
		return strconv.FormatUint(uint64(t.number), 10)
	case Literal:
		return "{" + strconv.FormatUint(uint64(t.number), 10) + "}"
	case Quoted:
		var b strings.Builder
		b.WriteByte('"')
		for _, r := range t.text {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
		return b.String()
	case Bracketed:
		return "[" + t.text + "]"
	case List:
		parts := make([]string, len(t.list))
		for i, c := range t.list {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return t.text
	}
}

// Parse tokenises s, returning the top-level sequence of tokens (space-separated, outside any
// enclosing list). An unterminated quote, bracket, or list is tolerated: the token simply
// extends to end-of-input, matching how malformed server lines are still at least partially
// useful to inspect.
func Parse(s string) []*Token {
	p := &parser{input: s}
	return p.parseSequence(false)
}

type parser struct {
	input string
	pos   int
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

// parseSequence reads tokens until end of input (insideList=false) or until the matching ')'
// (insideList=true), which it consumes.
func (p *parser) parseSequence(insideList bool) []*Token {
	var out []*Token
	for {
		// skip spaces
		for !p.eof() && p.peek() == ' ' {
			p.pos++
		}
		if p.eof() {
			return out
		}
		if insideList && p.peek() == ')' {
			p.pos++
			return out
		}
		tok := p.parseToken()
		if tok != nil {
			out = append(out, tok)
		}
	}
}

func (p *parser) parseToken() *Token {
	c := p.peek()
	switch {
	case c == '"':
		return p.parseQuoted()
	case c == '(':
		p.pos++
		children := p.parseSequence(true)
		return &Token{typ: List, list: children}
	case c == '[':
		return p.parseBracketed()
	case c == '{':
		return p.parseLiteralMarker()
	case c >= '0' && c <= '9':
		return p.parseNumberOrText()
	default:
		return p.parseText()
	}
}

func (p *parser) parseQuoted() *Token {
	p.pos++ // consume opening quote
	var b strings.Builder
	for !p.eof() {
		c := p.input[p.pos]
		if c == '\\' && p.pos+1 < len(p.input) {
			p.pos++
			b.WriteByte(p.input[p.pos])
			p.pos++
			continue
		}
		if c == '"' {
			p.pos++
			break
		}
		b.WriteByte(c)
		p.pos++
	}
	return &Token{typ: Quoted, text: b.String(), isQuoted: true}
}

func (p *parser) parseBracketed() *Token {
	p.pos++ // consume '['
	start := p.pos
	for !p.eof() && p.input[p.pos] != ']' {
		p.pos++
	}
	text := p.input[start:p.pos]
	if !p.eof() {
		p.pos++ // consume ']'
	}
	return &Token{typ: Bracketed, text: text}
}

func (p *parser) parseLiteralMarker() *Token {
	p.pos++ // consume '{'
	start := p.pos
	for !p.eof() && p.input[p.pos] != '}' {
		p.pos++
	}
	digits := p.input[start:p.pos]
	if !p.eof() {
		p.pos++ // consume '}'
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return &Token{typ: Text, text: "{" + digits + "}"}
	}
	return &Token{typ: Literal, number: uint32(n)}
}

func isTerminator(c byte) bool {
	return c == ' ' || c == ')' || c == ']'
}

func (p *parser) parseNumberOrText() *Token {
	start := p.pos
	allDigits := true
	for !p.eof() && !isTerminator(p.peek()) {
		if p.peek() < '0' || p.peek() > '9' {
			allDigits = false
		}
		p.pos++
	}
	raw := p.input[start:p.pos]
	if allDigits {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err == nil {
			return &Token{typ: Number, number: uint32(n)}
		}
	}
	return &Token{typ: Text, text: raw}
}

func (p *parser) parseText() *Token {
	start := p.pos
	for !p.eof() && !isTerminator(p.peek()) {
		p.pos++
	}
	if p.pos == start && !p.eof() {
		// a stray ')' or ']' with nothing open to close becomes a one-character Text token
		p.pos++
	}
	return &Token{typ: Text, text: p.input[start:p.pos]}
}
