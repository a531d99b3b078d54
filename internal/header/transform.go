package header

import (
	"log/slog"
	"regexp"
	"strconv"
)

// Fallback tokens returned by the extractors when nothing in the input
// matches. Legacy callers key off these, so they are part of the contract.
const (
	// MethodFallback is returned by ExtractMethod for inputs with no word
	// characters at all.
	MethodFallback = "OPTIONS"
	// ProtocolFallback is returned by ExtractProtocol when no protocol
	// token is present.
	ProtocolFallback = "UNKNOWN"
)

var (
	hostLine      = regexp.MustCompile(`(?m)^Host:[^\r\n]*\r\n`)
	contentLength = regexp.MustCompile(`[cC]ontent-[lL]ength:\s*([0-9]+)`)
	urlToken      = regexp.MustCompile(`/[a-zA-Z0-9_\-/]*`)
	protoToken    = regexp.MustCompile(`HTTPS?/[0-9]+\.[0-9]+`)
	methodToken   = regexp.MustCompile(`\w+`)
)

// The transforms below work on the raw preamble text directly so callers
// that need a single field never pay for a full parse. They share "first
// match anywhere, fallback on no match" semantics.

// RewriteHost replaces the first line-anchored "Host: ..." line in raw with
// the target address and reports whether a replacement happened. When no
// Host line exists raw is returned unchanged with ok=false; a Host line is
// never fabricated, so callers can reject hostless requests. Matching is
// case-sensitive and the rewrite is idempotent for a fixed target.
func RewriteHost(raw, target string) (rewritten string, ok bool) {
	loc := hostLine.FindStringIndex(raw)
	if loc == nil {
		return raw, false
	}
	return raw[:loc[0]] + "Host: " + target + CRLF + raw[loc[1]:], true
}

// ContentLength extracts the declared body length from raw. ok is false
// when no content-length token is present or its digit run does not fit in
// a uint64; the latter is warned about but never fails the caller.
func ContentLength(raw string) (n uint64, ok bool) {
	m := contentLength.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		slog.Warn("unparsable content-length digits", "token", m[1], "err", err)
		return 0, false
	}
	return n, true
}

// ExtractURL returns the first path-shaped token in raw, or "/" when none
// is found.
func ExtractURL(raw string) string {
	if m := urlToken.FindString(raw); m != "" {
		return m
	}
	return "/"
}

// ExtractProtocol returns the first HTTP/HTTPS version token in raw
// (e.g. "HTTP/1.1"), or ProtocolFallback.
func ExtractProtocol(raw string) string {
	if m := protoToken.FindString(raw); m != "" {
		return m
	}
	return ProtocolFallback
}

// ExtractMethod returns the first run of word characters in raw, which for
// a well-formed request preamble is the request method, or MethodFallback.
func ExtractMethod(raw string) string {
	if m := methodToken.FindString(raw); m != "" {
		return m
	}
	return MethodFallback
}
