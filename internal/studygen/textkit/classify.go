package textkit

import (
	"regexp"
	"sort"
	"strings"
)

const CategoryGeneral = "General"

type categoryRule struct {
	name  string
	words []string
}

// Ordered; earlier rules win ties.
var categoryRules = []categoryRule{
	{"Mathematics", []string{"equation", "theorem", "integral", "derivative", "algebra", "calculus", "geometry", "matrix", "proof", "function", "polynomial", "probability", "statistics"}},
	{"Computer Science", []string{"algorithm", "program", "software", "database", "compiler", "network", "variable", "recursion", "data structure", "complexity", "code", "computer"}},
	{"Physics", []string{"force", "energy", "velocity", "momentum", "quantum", "gravity", "acceleration", "electric", "magnetic", "wave", "particle"}},
	{"Chemistry", []string{"molecule", "atom", "reaction", "compound", "element", "bond", "acid", "chemical", "electron", "solution"}},
	{"Biology", []string{"cell", "organism", "gene", "protein", "evolution", "species", "photosynthesis", "dna", "enzyme", "tissue", "ecosystem"}},
	{"History", []string{"war", "century", "empire", "revolution", "treaty", "dynasty", "ancient", "colonial", "historical", "king"}},
	{"Literature", []string{"novel", "poem", "author", "character", "narrative", "metaphor", "poetry", "literary", "theme", "prose"}},
	{"Economics", []string{"market", "economy", "demand", "supply", "price", "inflation", "trade", "investment", "finance", "business"}},
	{"Psychology", []string{"behavior", "cognitive", "memory", "emotion", "perception", "motivation", "personality", "mental"}},
}

// DetectCategory picks the subject whose vocabulary appears most often.
func DetectCategory(text string) string {
	lower := " " + Normalize(text) + " "
	best, bestHits := CategoryGeneral, 0
	for _, rule := range categoryRules {
		hits := 0
		for _, w := range rule.words {
			hits += strings.Count(lower, " "+w)
		}
		if hits > bestHits {
			best, bestHits = rule.name, hits
		}
	}
	return best
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z\-]{3,}`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`about above after again against also among another because been before being below between both
		cannot could does doing down during each either every few from further have having here hers herself himself
		however into itself just many more most much must neither other ought ours ourselves over same several
		shall should since some such than that their theirs them themselves then there these they this those through
		under until upon very what when where which while whom whose will with within without would your yours
		yourself yourselves make made uses used using like also often well thus therefore part first second third
		include includes including called known example examples`) {
		stopwords[w] = struct{}{}
	}
}

// Keywords returns up to max frequent content words, most frequent first.
// Ties keep first-occurrence order so the result is deterministic.
func Keywords(text string, max int) []string {
	if max <= 0 {
		return []string{}
	}
	counts := map[string]int{}
	order := []string{}
	for _, w := range wordPattern.FindAllString(text, -1) {
		w = strings.ToLower(strings.Trim(w, "-"))
		if len(w) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > max {
		order = order[:max]
	}
	return order
}

// DedupeTags lowercases, trims and deduplicates tags, keeping order and at
// most max entries.
func DedupeTags(tags []string, max int) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.ToLower(CollapseSpace(strings.Trim(t, " #,;")))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
