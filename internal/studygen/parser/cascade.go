// Package parser recovers structured records from free-form generation
// replies. Parse tries strategies from strict to lenient and always returns
// a value; "nothing usable" is the Empty outcome, not an error.
package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

type Shape int

const (
	ShapeArray Shape = iota
	ShapeObject
)

type Outcome int

const (
	Empty Outcome = iota
	Parsed
)

func (o Outcome) String() string {
	if o == Parsed {
		return "parsed"
	}
	return "empty"
}

// Expect describes what a reply should contain. Keys are the record fields
// the field-pair strategy looks for; Wrappers are object keys that may hold
// the list (e.g. {"flashcards": [...]}).
type Expect struct {
	Shape    Shape
	Keys     []string
	Wrappers []string
}

type Result struct {
	Outcome  Outcome
	Strategy string
	Items    []map[string]any
	Object   map[string]any
}

const (
	StrategyDirect     = "direct"
	StrategyFence      = "fence"
	StrategyBalanced   = "balanced"
	StrategyFieldPairs = "field_pairs"
)

var defaultWrappers = []string{"items", "data", "results", "records", "entries", "events", "notes", "flashcards", "cards", "schedule", "timetable", "classes"}

// Parse runs the cascade. It never panics on malformed input.
func Parse(raw string, want Expect) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Outcome: Empty}
	}
	if r, ok := accept(trimmed, want); ok {
		r.Strategy = StrategyDirect
		return r
	}
	if unfenced := stripCodeFences(trimmed); unfenced != trimmed {
		if r, ok := accept(unfenced, want); ok {
			r.Strategy = StrategyFence
			return r
		}
	}
	for _, candidate := range bracketCandidates(trimmed, want.Shape) {
		if r, ok := accept(candidate, want); ok {
			r.Strategy = StrategyBalanced
			return r
		}
	}
	if r, ok := fieldPairs(trimmed, want); ok {
		r.Strategy = StrategyFieldPairs
		return r
	}
	return Result{Outcome: Empty}
}

// accept decodes text and keeps it only when it yields a non-empty value of
// the expected shape.
func accept(text string, want Expect) (Result, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Result{}, false
	}
	switch want.Shape {
	case ShapeObject:
		obj, ok := v.(map[string]any)
		if !ok || !objectSchema().matches(obj) {
			return Result{}, false
		}
		return Result{Outcome: Parsed, Object: obj}, true
	default:
		items := asRecordList(v, want)
		if !arraySchema().matches(toAnySlice(items)) {
			return Result{}, false
		}
		return Result{Outcome: Parsed, Items: items}, true
	}
}

func asRecordList(v any, want Expect) []map[string]any {
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, el := range t {
			if m, ok := el.(map[string]any); ok && len(m) > 0 {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		wrappers := append(append([]string{}, want.Wrappers...), defaultWrappers...)
		for _, k := range wrappers {
			if inner, ok := lookupFold(t, k); ok {
				if list, ok := inner.([]any); ok {
					return asRecordList(list, want)
				}
			}
		}
		// A bare record where a list was expected.
		if hasAnyKey(t, want.Keys) {
			return []map[string]any{t}
		}
	}
	return nil
}

func toAnySlice(items []map[string]any) []any {
	out := make([]any, len(items))
	for i, m := range items {
		out[i] = m
	}
	return out
}

// stripCodeFences removes ``` markers (with an optional language tag) and
// keeps the fenced body. Prose outside the first fence is dropped.
func stripCodeFences(s string) string {
	open := strings.Index(s, "```")
	if open == -1 {
		return s
	}
	body := s[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl != -1 && !strings.ContainsAny(body[:nl], "[{") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// bracketCandidates returns balanced [...] / {...} substrings in order of
// their opening position. Brackets inside JSON strings are ignored. An
// unterminated array is salvaged up to its last complete element.
func bracketCandidates(s string, shape Shape) []string {
	var out []string
	openers := "[{"
	if shape == ShapeObject {
		openers = "{"
	}
	for i := 0; i < len(s) && len(out) < 8; i++ {
		if !strings.ContainsRune(openers, rune(s[i])) {
			continue
		}
		end, complete, lastElem := scanBalanced(s, i)
		switch {
		case complete:
			out = append(out, s[i:end])
			if shape == ShapeArray && s[i] == '[' {
				// Nested candidates are reachable through the outer one.
				i = end - 1
			}
		case s[i] == '[' && lastElem > i:
			out = append(out, s[i:lastElem]+"]")
			return out
		}
	}
	return out
}

// scanBalanced walks from s[start] until the opening bracket is closed.
// lastElem is the offset just past the last element closed at depth one,
// used to salvage truncated arrays.
func scanBalanced(s string, start int) (end int, complete bool, lastElem int) {
	stack := make([]byte, 0, 8)
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false, lastElem
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1, true, lastElem
			}
			if len(stack) == 1 {
				lastElem = i + 1
			}
		}
	}
	return 0, false, lastElem
}

var fieldPairPattern = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_ \-]{0,40})"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// fieldPairs rebuilds at most one record from loose "key": "value" pairs.
func fieldPairs(s string, want Expect) (Result, bool) {
	matches := fieldPairPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return Result{}, false
	}
	rec := map[string]any{}
	for _, m := range matches {
		key := strings.TrimSpace(m[1])
		if _, dup := rec[key]; dup {
			// A second occurrence means a second record began; keep the first.
			break
		}
		val, err := strconv.Unquote(`"` + m[2] + `"`)
		if err != nil {
			val = m[2]
		}
		rec[key] = val
	}
	if len(want.Keys) > 0 && !hasAnyKey(rec, want.Keys) {
		return Result{}, false
	}
	if want.Shape == ShapeObject {
		return Result{Outcome: Parsed, Object: rec}, true
	}
	return Result{Outcome: Parsed, Items: []map[string]any{rec}}, true
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := lookupFold(m, k); ok {
			return true
		}
	}
	return false
}

func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
