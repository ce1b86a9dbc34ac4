package classify

import (
	"strings"
	"unicode"
)

// MaxStoredTextLen bounds the message body persisted to the backend.
// Longer bodies are truncated silently, never rejected.
const MaxStoredTextLen = 10000

// Normalize repairs and canonicalizes inbound message text before it is
// matched, cached, or sent to the remote classifier. The cache key for
// remote-classifier responses is derived from this output, so the
// transform must be deterministic and idempotent:
//
//	Normalize(Normalize(s)) == Normalize(s)
//
// Steps: invalid UTF-8 sequences dropped, null bytes and U+FFFD stripped,
// whitespace runs collapsed to a single space, leading/trailing space
// removed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if r == 0 || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)

	// Collapse every whitespace run (spaces, tabs, newlines) and trim.
	return strings.Join(strings.Fields(s), " ")
}

// Truncate bounds s to at most n runes, never splitting a multibyte
// sequence. The stored bound counts characters the way the backend
// column does.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
