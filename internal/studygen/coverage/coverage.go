package coverage

import (
	"math"
	"regexp"
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/textkit"
)

const (
	DefaultThreshold = 50.0
	DefaultMaxTopics = 20
)

// Validator measures how many source topics reappear in generated output.
// It never fails a pipeline; Acceptable is the only signal it gives.
type Validator struct {
	Threshold float64
	MaxTopics int
}

func New(threshold float64, maxTopics int) Validator {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	if maxTopics <= 0 {
		maxTopics = DefaultMaxTopics
	}
	return Validator{Threshold: threshold, MaxTopics: maxTopics}
}

func (v Validator) Evaluate(source string, generated []string) records.CoverageReport {
	if v.MaxTopics <= 0 || v.Threshold <= 0 {
		v = New(v.Threshold, v.MaxTopics)
	}
	topics := ExtractTopics(source, v.MaxTopics)
	haystack := textkit.Normalize(strings.Join(generated, "\n"))
	compact := strings.ReplaceAll(haystack, " ", "")

	report := records.CoverageReport{
		Topics:    topics,
		Covered:   []string{},
		Missing:   []string{},
		Threshold: v.Threshold,
	}
	for _, topic := range topics {
		if covered(topic, haystack, compact) {
			report.Covered = append(report.Covered, topic)
		} else {
			report.Missing = append(report.Missing, topic)
		}
	}
	report.Percentage = percentage(len(report.Covered), len(topics))
	report.Acceptable = report.Percentage >= v.Threshold
	return report
}

func covered(topic, haystack, compact string) bool {
	norm := textkit.Normalize(topic)
	if norm == "" {
		return true
	}
	if strings.Contains(haystack, norm) {
		return true
	}
	return strings.Contains(compact, strings.ReplaceAll(norm, " ", ""))
}

func percentage(covered, total int) float64 {
	if total == 0 {
		return 100
	}
	p := float64(covered) * 100 / float64(total)
	p = math.Round(p*100) / 100
	return math.Max(0, math.Min(100, p))
}

var (
	numberedItem  = regexp.MustCompile(`^(?:\d{1,3}|[ivxIVX]{1,5}|[A-Za-z])[.)]\s+(.+)$`)
	capPhrase     = regexp.MustCompile(`\b[A-Z][a-zA-Z\-]+(?:[ \t]+(?:(?:of|and|for|the)[ \t]+)?[A-Z][a-zA-Z\-]+){1,3}\b`)
	leadingFiller = regexp.MustCompile(`^(?:The|A|An|This|These|That|In|On|At|For|Chapter|Section|Part)\s+`)
)

// ExtractTopics collects up to max topic candidates from numbered items,
// heading lines followed by a much longer body line, and capitalized
// multi-word phrases, in that order.
func ExtractTopics(source string, max int) []string {
	if max <= 0 {
		max = DefaultMaxTopics
	}
	out := []string{}
	seen := map[string]struct{}{}
	add := func(topic string) bool {
		topic = strings.TrimSpace(strings.Trim(topic, " .,;:-*#"))
		n := len([]rune(topic))
		if n < 3 || n > 80 {
			return len(out) < max
		}
		key := textkit.Normalize(topic)
		if key == "" {
			return len(out) < max
		}
		if _, dup := seen[key]; dup {
			return len(out) < max
		}
		seen[key] = struct{}{}
		out = append(out, topic)
		return len(out) < max
	}

	lines := textkit.SplitLines(source)
	for _, line := range lines {
		if m := numberedItem.FindStringSubmatch(line); m != nil {
			if !add(headPart(m[1])) {
				return out
			}
		}
	}
	for i := 0; i+1 < len(lines); i++ {
		head, body := strings.TrimLeft(lines[i], "#* "), lines[i+1]
		if numberedItem.MatchString(lines[i]) || strings.HasSuffix(head, ".") {
			continue
		}
		hl, bl := len([]rune(head)), len([]rune(body))
		if hl >= 3 && hl <= 60 && bl >= 40 && bl >= 2*hl {
			if !add(head) {
				return out
			}
		}
	}
	for _, phrase := range capPhrase.FindAllString(source, -1) {
		phrase = leadingFiller.ReplaceAllString(phrase, "")
		if len(strings.Fields(phrase)) < 2 || len(phrase) > 50 {
			continue
		}
		if !add(phrase) {
			return out
		}
	}
	return out
}

// headPart keeps the label of "Topic: explanation" or "Topic - explanation".
func headPart(item string) string {
	for _, sep := range []string{": ", " - ", " – ", " — "} {
		if i := strings.Index(item, sep); i > 0 {
			return item[:i]
		}
	}
	if len([]rune(item)) > 60 {
		if s := textkit.SplitSentences(item); len(s) > 0 {
			return textkit.Truncate(s[0], 60)
		}
	}
	return item
}

// PassagesFor returns the source paragraphs that mention any of the given
// topics, joined by blank lines, for a targeted supplemental pass.
func PassagesFor(source string, topics []string) string {
	if len(topics) == 0 {
		return ""
	}
	norms := make([]string, 0, len(topics))
	for _, t := range topics {
		if n := textkit.Normalize(t); n != "" {
			norms = append(norms, n)
		}
	}
	var picked []string
	for _, para := range textkit.SplitParagraphs(source) {
		np := textkit.Normalize(para)
		for _, n := range norms {
			if strings.Contains(np, n) {
				picked = append(picked, para)
				break
			}
		}
	}
	return strings.Join(picked, "\n\n")
}
