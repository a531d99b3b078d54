package header

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRewriteHost(t *testing.T) {
	raw := "GET /x HTTP/1.1\r\nHost: old.example\r\nAccept: */*\r\n\r\n"

	got, ok := RewriteHost(raw, "new.example:8080")
	if !ok {
		t.Fatal("RewriteHost() ok = false, want true")
	}
	want := "GET /x HTTP/1.1\r\nHost: new.example:8080\r\nAccept: */*\r\n\r\n"
	if got != want {
		t.Errorf("RewriteHost() = %q, want %q", got, want)
	}
}

func TestRewriteHost_Idempotent(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: old:1\r\n\r\n"

	once, ok := RewriteHost(raw, "127.0.0.1:9000")
	if !ok {
		t.Fatal("first rewrite failed")
	}
	twice, ok := RewriteHost(once, "127.0.0.1:9000")
	if !ok {
		t.Fatal("second rewrite failed")
	}
	if once != twice {
		t.Errorf("second rewrite changed output: %q vs %q", once, twice)
	}
}

func TestRewriteHost_NoHostLine(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no host at all", "GET / HTTP/1.1\r\nAccept: */*\r\n\r\n"},
		{"lowercase host does not match", "GET / HTTP/1.1\r\nhost: a\r\n\r\n"},
		{"host token mid-line does not match", "GET / HTTP/1.1\r\nX: say Host: a\r\n\r\n"},
		{"empty input", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RewriteHost(tt.raw, "target:1")
			if ok {
				t.Errorf("RewriteHost() ok = true, want false")
			}
			if got != tt.raw {
				t.Errorf("RewriteHost() = %q, want input unchanged", got)
			}
		})
	}
}

func TestRewriteHost_OnlyFirstHostLine(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n"

	got, ok := RewriteHost(raw, "t:1")
	if !ok {
		t.Fatal("RewriteHost() ok = false, want true")
	}
	if want := "GET / HTTP/1.1\r\nHost: t:1\r\nHost: b\r\n\r\n"; got != want {
		t.Errorf("RewriteHost() = %q, want %q", got, want)
	}
}

func TestContentLength(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   uint64
		wantOK bool
	}{
		{"canonical", "Content-Length: 42\r\n", 42, true},
		{"lowercase no space", "content-length:7", 7, true},
		{"mixed case", "Content-length: 10\r\n", 10, true},
		{"inside full preamble", "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 4\r\n\r\n", 4, true},
		{"absent", "X: y", 0, false},
		{"no digits", "Content-Length: none\r\n", 0, false},
		{"overflows uint64", "Content-Length: 99999999999999999999999999\r\n", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ContentLength(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ContentLength(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ContentLength(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestContentLength_UnparsableDigitsAreWarned(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	n, ok := ContentLength("Content-Length: 99999999999999999999999999\r\n")
	if ok || n != 0 {
		t.Fatalf("ContentLength() = %d, %v, want 0, false", n, ok)
	}
	// The diagnostic must be visible at the default info level.
	if !strings.Contains(buf.String(), "unparsable content-length") {
		t.Errorf("expected a warning about the digits, got %q", buf.String())
	}
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"GET /foo/bar HTTP/1.1", "/foo/bar"},
		{"GET / HTTP/1.1", "/"},
		{"GET /a_b-c/d2 HTTP/1.1", "/a_b-c/d2"},
		{"no path here", "/"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ExtractURL(tt.raw); got != tt.want {
				t.Errorf("ExtractURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExtractProtocol(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"GET / HTTP/1.1\r\n", "HTTP/1.1"},
		{"GET / HTTPS/2.0\r\n", "HTTPS/2.0"},
		{"no protocol", ProtocolFallback},
		{"", ProtocolFallback},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ExtractProtocol(tt.raw); got != tt.want {
				t.Errorf("ExtractProtocol(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExtractMethod(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"GET /foo HTTP/1.1", "GET"},
		{"DELETE /x HTTP/1.1", "DELETE"},
		{"   POST /y", "POST"},
		{"...", MethodFallback},
		{"", MethodFallback},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ExtractMethod(tt.raw); got != tt.want {
				t.Errorf("ExtractMethod(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRewriteHost_OtherLinesUntouched(t *testing.T) {
	lines := []string{
		"POST /submit HTTP/1.1",
		"Host: old.example",
		"Content-Length: 4",
		"Accept: text/plain",
		"",
		"",
	}
	raw := strings.Join(lines, "\r\n")

	got, ok := RewriteHost(raw, "new.example")
	if !ok {
		t.Fatal("RewriteHost() ok = false, want true")
	}
	for _, l := range lines {
		if l == "Host: old.example" {
			continue
		}
		if !strings.Contains(got, l) {
			t.Errorf("line %q missing from rewritten preamble %q", l, got)
		}
	}
}
