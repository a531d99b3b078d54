// Package header implements parsing and rewriting of HTTP-like request and
// response preambles over raw text, without a full HTTP stack.
package header

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CRLF terminates each preamble line; a bare CRLF terminates the block.
const CRLF = "\r\n"

// separator divides a header line into name and value.
const separator = ": "

// ErrInvalidEncoding reports preamble bytes that are not valid UTF-8 text.
var ErrInvalidEncoding = errors.New("header: input is not valid UTF-8")

// Header is a single name/value pair. Name is kept exactly as it appeared in
// the input, without the trailing colon; Value is lowercased with leading
// spaces stripped and may be empty.
type Header struct {
	Name  string
	Value string
}

// String renders h as it would appear on the wire, without a terminator.
func (h Header) String() string {
	return h.Name + separator + h.Value
}

// HeaderSet is a parsed preamble. Raw holds the original block unmodified;
// List holds the headers in order of appearance, duplicates preserved.
// List is a pure function of Raw: re-parsing Raw yields an equal List.
type HeaderSet struct {
	Raw  string
	List []Header
}

// Parse splits raw into headers. It never fails: a line without the ": "
// separator contributes nothing to the list, which also keeps the request
// or status line out of it. Lines that do contain the separator are split
// at their first colon, so a name can never contain one and a value keeps
// any embedded ": " intact.
func Parse(raw string) HeaderSet {
	hs := HeaderSet{Raw: raw}
	for _, line := range strings.Split(raw, CRLF) {
		if !strings.Contains(line, separator) {
			continue
		}
		i := strings.IndexByte(line, ':')
		hs.List = append(hs.List, Header{
			Name:  line[:i],
			Value: strings.ToLower(strings.TrimLeft(line[i+1:], " ")),
		})
	}
	return hs
}

// ParseBytes decodes b as UTF-8 text and parses it. Unlike Parse it can
// fail: non-text input yields an error wrapping ErrInvalidEncoding so
// callers can distinguish decoding failures from malformed-but-decodable
// preambles, which degrade gracefully.
func ParseBytes(b []byte) (HeaderSet, error) {
	if !utf8.Valid(b) {
		return HeaderSet{}, fmt.Errorf("%w (%d bytes)", ErrInvalidEncoding, len(b))
	}
	return Parse(string(b)), nil
}
