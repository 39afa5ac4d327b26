package chunker

import (
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/textkit"
)

const (
	DefaultMaxChars = 8000
	DefaultMinChars = 50
)

type Options struct {
	MaxChars int
	MinChars int
}

func (o Options) withDefaults() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.MinChars < 0 {
		o.MinChars = 0
	} else if o.MinChars == 0 {
		o.MinChars = DefaultMinChars
	}
	return o
}

// NeedsSplit reports whether text is longer than max characters.
func NeedsSplit(text string, max int) bool {
	if max <= 0 {
		max = DefaultMaxChars
	}
	return runeLen(strings.TrimSpace(text)) > max
}

// Split breaks text into ordered chunks of at most opts.MaxChars characters.
// Paragraphs are packed first; a paragraph that alone exceeds the limit is
// packed sentence by sentence, and a sentence that alone exceeds the limit
// becomes its own chunk.
func Split(text string, opts Options) []records.Chunk {
	opts = opts.withDefaults()
	text = strings.TrimSpace(text)
	if text == "" {
		return []records.Chunk{}
	}

	var pieces []string
	acc := accumulator{max: opts.MaxChars, sep: "\n\n"}
	for _, para := range textkit.SplitParagraphs(text) {
		if runeLen(para) <= opts.MaxChars {
			if flushed, ok := acc.add(para); ok {
				pieces = append(pieces, flushed)
			}
			continue
		}
		if flushed, ok := acc.flush(); ok {
			pieces = append(pieces, flushed)
		}
		sent := accumulator{max: opts.MaxChars, sep: " "}
		for _, s := range textkit.SplitSentences(para) {
			if flushed, ok := sent.add(s); ok {
				pieces = append(pieces, flushed)
			}
		}
		if flushed, ok := sent.flush(); ok {
			pieces = append(pieces, flushed)
		}
	}
	if flushed, ok := acc.flush(); ok {
		pieces = append(pieces, flushed)
	}

	if len(pieces) > 1 && opts.MinChars > 0 {
		kept := pieces[:0]
		for _, p := range pieces {
			if runeLen(p) >= opts.MinChars {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			kept = pieces[:1]
		}
		pieces = kept
	}

	out := make([]records.Chunk, len(pieces))
	for i, p := range pieces {
		out[i] = records.Chunk{Text: p, Index: i, Total: len(pieces)}
	}
	return out
}

type accumulator struct {
	max  int
	sep  string
	buf  strings.Builder
	size int
}

// add appends unit, first flushing the current buffer when unit would push
// it past max. The flushed text is returned with ok=true.
func (a *accumulator) add(unit string) (string, bool) {
	n := runeLen(unit)
	var flushed string
	var ok bool
	if a.size > 0 && a.size+runeLen(a.sep)+n > a.max {
		flushed, ok = a.flush()
	}
	if a.size > 0 {
		a.buf.WriteString(a.sep)
		a.size += runeLen(a.sep)
	}
	a.buf.WriteString(unit)
	a.size += n
	return flushed, ok
}

func (a *accumulator) flush() (string, bool) {
	if a.size == 0 {
		return "", false
	}
	s := a.buf.String()
	a.buf.Reset()
	a.size = 0
	return s, true
}

func runeLen(s string) int { return len([]rune(s)) }
