package fallback

import (
	"regexp"
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/textkit"
)

const MaxFlashcards = 10

var (
	definitionPattern = regexp.MustCompile(`^(?:The\s+|An?\s+)?([A-Za-z][A-Za-z0-9'\- ]{1,48}?)\s+(is defined as|refers to|means|is|are)\s+(.{8,})$`)
	figurePattern     = regexp.MustCompile(`\d`)
	pronounSubject    = regexp.MustCompile(`(?i)^(it|this|that|there|these|those|they|he|she|we|you|i|which|what|who)$`)
)

// Flashcards builds definition cards, reading comprehension cards and a
// single figures card. At most max cards (capped at MaxFlashcards) are
// returned.
func Flashcards(text string, max int) []records.Flashcard {
	if max <= 0 || max > MaxFlashcards {
		max = MaxFlashcards
	}
	sents := textkit.SplitSentences(textkit.CollapseSpace(text))
	if len(sents) == 0 {
		return []records.Flashcard{}
	}
	category := textkit.DetectCategory(text)

	var defs, comprehension []records.Flashcard
	var figures []string
	used := map[int]bool{}
	seenQ := map[string]bool{}

	for i, s := range sents {
		if card, ok := definitionCard(s, category); ok && !seenQ[card.Question] {
			seenQ[card.Question] = true
			defs = append(defs, card)
			used[i] = true
		}
	}
	for i, s := range sents {
		if figurePattern.MatchString(s) && len([]rune(s)) <= 200 && len(figures) < 3 {
			figures = append(figures, strings.TrimSpace(s))
			used[i] = true
		}
	}
	for i, s := range sents {
		if used[i] {
			continue
		}
		n := len([]rune(s))
		if n < 60 || n > 220 {
			continue
		}
		kw := textkit.Keywords(s, 1)
		if len(kw) == 0 {
			continue
		}
		q := "What does the material say about " + kw[0] + "?"
		if seenQ[q] {
			continue
		}
		seenQ[q] = true
		comprehension = append(comprehension, records.Flashcard{
			Question:   q,
			Answer:     s,
			Category:   category,
			Difficulty: records.DifficultyMedium,
			Origin:     records.OriginFallback,
		})
	}

	budget := max
	if len(figures) > 0 {
		budget--
	}
	out := make([]records.Flashcard, 0, max)
	for _, c := range defs {
		if len(out) == budget {
			break
		}
		out = append(out, c)
	}
	for _, c := range comprehension {
		if len(out) == budget {
			break
		}
		out = append(out, c)
	}
	if len(figures) > 0 {
		out = append(out, records.Flashcard{
			Question:   "What key figures or dates does the material mention?",
			Answer:     strings.Join(figures, " "),
			Category:   category,
			Difficulty: records.DifficultyHard,
			Origin:     records.OriginFallback,
		})
	}
	return out
}

func definitionCard(sentence, category string) (records.Flashcard, bool) {
	m := definitionPattern.FindStringSubmatch(strings.TrimSpace(sentence))
	if m == nil {
		return records.Flashcard{}, false
	}
	subject := strings.TrimSpace(m[1])
	if pronounSubject.MatchString(subject) || len(strings.Fields(subject)) > 5 {
		return records.Flashcard{}, false
	}
	verb, rest := m[2], strings.TrimSpace(m[3])
	var q string
	switch verb {
	case "are":
		q = "What are " + subject + "?"
	case "means":
		q = "What does " + subject + " mean?"
	default:
		q = "What is " + subject + "?"
	}
	return records.Flashcard{
		Question:   q,
		Answer:     upperFirst(rest),
		Category:   category,
		Difficulty: records.DifficultyEasy,
		Origin:     records.OriginFallback,
	}, true
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
