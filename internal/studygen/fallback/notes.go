// Package fallback holds deterministic extractors used when generation is
// unavailable or falls short. Each task has its own heuristics; they share
// only the helpers in textkit. All functions are pure and return non-nil
// slices.
package fallback

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/textkit"
)

const (
	maxNotes          = 10
	keyConceptCount   = 5
	keyConceptMinLen  = 40
	overviewSentences = 2
)

var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	numberedHeading = regexp.MustCompile(`^(?:\d{1,2}|[IVX]{1,4})[.)]\s+([A-Z].{1,60})$`)
)

type section struct {
	title string
	body  string
}

// Notes turns text into markdown notes, one per detected section. Every
// note's content carries "## Overview", "## Key Concepts" and "## Summary"
// markers.
func Notes(text, sourceName string) []records.Note {
	text = strings.TrimSpace(text)
	if text == "" {
		return []records.Note{}
	}
	sections := sectionsByHeading(text)
	if len(sections) < 2 {
		sections = sectionsByParagraph(text)
	}
	docCategory := textkit.DetectCategory(text)

	out := make([]records.Note, 0, len(sections))
	for i, sec := range sections {
		body := strings.TrimSpace(sec.body)
		if body == "" {
			body = sec.title
		}
		title := sec.title
		if title == "" {
			title = defaultTitle(body, sourceName, i, len(sections))
		}
		category := textkit.DetectCategory(title + "\n" + body)
		if category == textkit.CategoryGeneral {
			category = docCategory
		}
		tags := textkit.Keywords(title+"\n"+body, 5)
		out = append(out, records.Note{
			Title:    title,
			Content:  renderNote(title, body),
			Category: category,
			Tags:     tags,
			Origin:   records.OriginFallback,
		})
	}
	return out
}

func sectionsByHeading(text string) []section {
	var out []section
	var cur *section
	var body []string
	flush := func() {
		if cur != nil {
			cur.body = strings.Join(body, "\n")
			out = append(out, *cur)
		}
		body = body[:0]
	}
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if heading, ok := headingOf(line); ok {
			flush()
			cur = &section{title: heading}
			continue
		}
		if cur == nil {
			if line == "" {
				continue
			}
			cur = &section{}
		}
		body = append(body, line)
	}
	flush()
	if len(out) > maxNotes {
		out = mergeSections(out, maxNotes)
	}
	return out
}

func headingOf(line string) (string, bool) {
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := numberedHeading.FindStringSubmatch(line); m != nil && !strings.HasSuffix(m[1], ".") {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

func sectionsByParagraph(text string) []section {
	paras := textkit.SplitParagraphs(text)
	out := make([]section, 0, len(paras))
	for _, p := range paras {
		out = append(out, section{body: p})
	}
	if len(out) > maxNotes {
		out = mergeSections(out, maxNotes)
	}
	return out
}

// mergeSections folds consecutive sections together so at most n remain.
func mergeSections(in []section, n int) []section {
	per := (len(in) + n - 1) / n
	out := make([]section, 0, n)
	for i := 0; i < len(in); i += per {
		end := i + per
		if end > len(in) {
			end = len(in)
		}
		merged := section{title: in[i].title}
		parts := make([]string, 0, end-i)
		for _, s := range in[i:end] {
			if s.title != "" && s.title != merged.title {
				parts = append(parts, s.title)
			}
			parts = append(parts, s.body)
		}
		merged.body = strings.Join(parts, "\n\n")
		out = append(out, merged)
	}
	return out
}

func defaultTitle(body, sourceName string, i, total int) string {
	if sents := textkit.SplitSentences(body); len(sents) > 0 {
		if t := textkit.Truncate(strings.TrimRight(sents[0], ".!?"), 60); len(t) >= 3 {
			return t
		}
	}
	name := strings.TrimSpace(sourceName)
	if name == "" {
		name = "Study Notes"
	}
	if total > 1 {
		return fmt.Sprintf("%s (Part %d)", name, i+1)
	}
	return name
}

func renderNote(title, body string) string {
	sents := textkit.SplitSentences(body)
	if len(sents) == 0 {
		sents = []string{textkit.CollapseSpace(body)}
	}

	var b strings.Builder
	b.WriteString("## Overview\n")
	b.WriteString(strings.Join(head(sents, overviewSentences), " "))
	b.WriteString("\n\n## Key Concepts\n")
	concepts := make([]string, 0, keyConceptCount)
	for _, s := range sents {
		if len([]rune(s)) >= keyConceptMinLen {
			concepts = append(concepts, s)
		}
		if len(concepts) == keyConceptCount {
			break
		}
	}
	if len(concepts) == 0 {
		concepts = head(sents, keyConceptCount)
	}
	for _, c := range concepts {
		b.WriteString("- ")
		b.WriteString(textkit.Truncate(c, 240))
		b.WriteString("\n")
	}
	b.WriteString("\n## Summary\n")
	b.WriteString(summarize(title, sents))
	return b.String()
}

func summarize(title string, sents []string) string {
	first := textkit.Truncate(sents[0], 200)
	if len(sents) == 1 {
		return first
	}
	last := textkit.Truncate(sents[len(sents)-1], 200)
	if len(sents) > 2 {
		return fmt.Sprintf("%s covers %d points. %s", title, len(sents), last)
	}
	return first + " " + last
}

func head(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
