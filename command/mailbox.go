package command

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// modifiedBase64 is the RFC 3501 §5.1.3 alphabet: standard base64 with "," in place of "/" and
// no padding.
var modifiedBase64 = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,",
).WithPadding(base64.NoPadding)

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// EncodeMailbox converts a Go string mailbox name to IMAP modified UTF-7: printable ASCII
// (except "&") passes through unchanged, "&" becomes "&-", and any other run of characters is
// transformed to big-endian UTF-16 (via golang.org/x/text/encoding/unicode) and wrapped in
// "&...-" using the modified base64 alphabet.
func EncodeMailbox(s string) (string, error) {
	runes := []rune(s)
	var out strings.Builder
	enc := utf16BE.NewEncoder()
	i := 0
	for i < len(runes) {
		r := runes[i]
		if r == '&' {
			out.WriteString("&-")
			i++
			continue
		}
		if r >= 0x20 && r <= 0x7e {
			out.WriteRune(r)
			i++
			continue
		}
		j := i
		for j < len(runes) && runes[j] != '&' && !(runes[j] >= 0x20 && runes[j] <= 0x7e) {
			j++
		}
		utf16bytes, err := enc.String(string(runes[i:j]))
		if err != nil {
			return "", fmt.Errorf("encoding mailbox run %q: %w", string(runes[i:j]), err)
		}
		out.WriteByte('&')
		out.WriteString(modifiedBase64.EncodeToString([]byte(utf16bytes)))
		out.WriteByte('-')
		i = j
	}
	return out.String(), nil
}

// DecodeMailbox is the inverse of EncodeMailbox.
func DecodeMailbox(s string) (string, error) {
	dec := utf16BE.NewDecoder()
	var out strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '&' {
			out.WriteByte(s[i])
			i++
			continue
		}
		j := i + 1
		for j < len(s) && s[j] != '-' {
			j++
		}
		if j == i+1 {
			out.WriteByte('&')
			i = j + 1
			continue
		}
		if j >= len(s) {
			return "", fmt.Errorf("unterminated modified UTF-7 run at byte %d", i)
		}
		raw, err := modifiedBase64.DecodeString(s[i+1 : j])
		if err != nil {
			return "", fmt.Errorf("decoding modified UTF-7 run %q: %w", s[i+1:j], err)
		}
		text, err := dec.String(string(raw))
		if err != nil {
			return "", fmt.Errorf("decoding UTF-16 run %q: %w", s[i+1:j], err)
		}
		out.WriteString(text)
		i = j + 1
	}
	return out.String(), nil
}
