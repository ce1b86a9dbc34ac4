package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "нужен python разработчик", Normalize("  нужен\t python \n\n разработчик  "))
}

func TestNormalizeStripsControlRunes(t *testing.T) {
	assert.Equal(t, "ab cd", Normalize("ab\x00 �cd"))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"  нужен\t python \n разработчик  ",
		"plain text",
		"",
		"a\x00b�c",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestTruncateIsRuneSafe(t *testing.T) {
	s := strings.Repeat("я", 10001)
	got := Truncate(s, MaxStoredTextLen)
	assert.Equal(t, 10000, len([]rune(got)))
	// Every rune survives intact; no split UTF-8 sequences.
	assert.Equal(t, strings.Repeat("я", 10000), got)
}

func TestTruncateShortInputUnchanged(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", MaxStoredTextLen))
}
