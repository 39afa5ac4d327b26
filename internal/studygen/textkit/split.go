// Package textkit contains the pure text heuristics shared by the parser,
// the coverage validator and the fallback extractors.
package textkit

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// SplitParagraphs splits on blank lines and drops empty paragraphs.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitSentences splits after runs of . ! or ? that are followed by
// whitespace or the end of text. Terminators stay with their sentence.
func SplitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	out := []string{}
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && (isTerminator(runes[j+1]) || isCloser(runes[j+1])) {
			j++
		}
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		if s := strings.TrimSpace(string(runes[start : j+1])); s != "" {
			out = append(out, s)
		}
		start = j + 1
		i = j
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTerminator(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isCloser(r rune) bool { return r == '"' || r == '\'' || r == ')' || r == ']' }

// SplitLines returns trimmed, non-empty lines.
func SplitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// CollapseSpace replaces every whitespace run with a single space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most n runes on a word boundary, adding an ellipsis.
func Truncate(s string, n int) string {
	s = CollapseSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:-") + "..."
}

// Normalize lowercases, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return CollapseSpace(b.String())
}
