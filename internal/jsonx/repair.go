// Package jsonx decodes and reconciles the loosely-formatted JSON that
// multimodal models return. Values are plain dynamic JSON (map[string]any,
// []any, scalars) so the merge and repair routines stay schema-agnostic.
package jsonx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// snippetLimit bounds the amount of raw model output carried in errors.
const snippetLimit = 1000

// ExtractionError reports that no JSON value could be recovered from a
// model response. Snippet holds the leading portion of the original text.
type ExtractionError struct {
	Snippet string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no JSON value could be extracted: %s", e.Snippet)
}

func newExtractionError(text string) *ExtractionError {
	r := []rune(text)
	if len(r) > snippetLimit {
		r = r[:snippetLimit]
	}
	return &ExtractionError{Snippet: string(r)}
}

// ParseStrictOrRepair converts model output text into a parsed JSON value.
//
// It first attempts a strict parse of the whole text. Failing that, it
// scans for balanced top-level {...} or [...] blocks and tries them in
// reverse order of discovery, since models tend to emit prose before the
// actual payload. Each candidate gets one round of soft fixes before it is
// given up on. When nothing parses, the returned error is an
// *ExtractionError carrying the head of the original text.
func ParseStrictOrRepair(text string) (any, error) {
	if v, err := parseStrict(text); err == nil {
		return v, nil
	}

	candidates := scanBalancedBlocks(text)
	for i := len(candidates) - 1; i >= 0; i-- {
		if v, err := parseStrict(candidates[i]); err == nil {
			return v, nil
		}
		if v, err := parseStrict(applySoftFixes(candidates[i])); err == nil {
			return v, nil
		}
	}

	return nil, newExtractionError(text)
}

// ExtractFirstJSONBlock is the narrower extraction mode used by the rules
// pipeline. Fenced ```json blocks are the highest-priority candidates,
// followed by balanced blocks found in the raw text. Each candidate is
// tried strictly, then with soft fixes, then as YAML (a superset of JSON
// that tolerates looser quoting). A decoded value is only accepted when it
// is a mapping containing at least one of expectedKeys; a single-element
// list wrapping such a mapping is unwrapped.
func ExtractFirstJSONBlock(text string, expectedKeys []string) (map[string]any, error) {
	var candidates []string
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		if block := strings.TrimSpace(m[1]); block != "" {
			candidates = append(candidates, block)
		}
	}
	candidates = append(candidates, scanBalancedBlocks(text)...)

	for _, c := range candidates {
		for _, attempt := range []string{c, applySoftFixes(c)} {
			if v, err := parseStrict(attempt); err == nil {
				if m, ok := acceptMapping(v, expectedKeys); ok {
					return m, nil
				}
			}
		}
		var v any
		if err := yaml.Unmarshal([]byte(c), &v); err == nil {
			if m, ok := acceptMapping(v, expectedKeys); ok {
				return m, nil
			}
		}
	}

	return nil, newExtractionError(text)
}

var fencedBlockRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// acceptMapping validates a decoded candidate: it must be a mapping with
// at least one expected top-level key, possibly wrapped in a one-element
// list.
func acceptMapping(v any, expectedKeys []string) (map[string]any, bool) {
	if list, ok := v.([]any); ok && len(list) == 1 {
		v = list[0]
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, k := range expectedKeys {
		if _, ok := m[k]; ok {
			return m, true
		}
	}
	return nil, false
}

// parseStrict decodes text as JSON, requiring the whole input to be one
// valid value.
func parseStrict(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// scanBalancedBlocks collects non-overlapping balanced {...} and [...]
// substrings in order of appearance. Matching is plain depth counting, not
// regex, so pathological inputs cannot blow up. Brackets inside string
// literals are not structural and do not count. Unclosed blocks are
// dropped.
func scanBalancedBlocks(text string) []string {
	var blocks []string
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		open := runes[i]
		if open != '{' && open != '[' {
			continue
		}
		if end, ok := matchBracket(runes, i); ok {
			blocks = append(blocks, string(runes[i:end+1]))
			i = end
		}
	}
	return blocks
}

// matchBracket returns the index of the close bracket balancing the open
// bracket at start, tracking both bracket kinds so nested mixed containers
// match correctly. String literals are skipped over, escape-aware, so a
// brace or bracket inside a string value never changes the depth.
func matchBracket(runes []rune, start int) (int, bool) {
	var depthCurly, depthSquare int
	var inString, escaped bool
	for i := start; i < len(runes); i++ {
		r := runes[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
			continue
		case '{':
			depthCurly++
		case '}':
			depthCurly--
			if depthCurly < 0 {
				return 0, false
			}
		case '[':
			depthSquare++
		case ']':
			depthSquare--
			if depthSquare < 0 {
				return 0, false
			}
		}
		if depthCurly == 0 && depthSquare == 0 {
			return i, true
		}
	}
	return 0, false
}

var (
	smartQuoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"‘", "'", "’", "'", "‚", "'", "‛", "'",
	)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	pyLiterals      = []struct{ from, to string }{
		{"True", "true"},
		{"False", "false"},
		{"None", "null"},
	}
	pyLiteralRes = func() []*regexp.Regexp {
		res := make([]*regexp.Regexp, len(pyLiterals))
		for i, lit := range pyLiterals {
			res[i] = regexp.MustCompile(`([\s:,\[])` + lit.from + `([\s,\]}])`)
		}
		return res
	}()
)

// applySoftFixes performs one bounded cleanup pass over a candidate:
// smart quotes become straight quotes, whitespace-delimited Python
// literals become their JSON equivalents, and trailing commas before a
// closing bracket are dropped. Valid JSON passes through unchanged in
// parsed value.
func applySoftFixes(text string) string {
	s := smartQuoteReplacer.Replace(text)
	// Pad so literals at the extremes still have delimiters on both sides.
	s = " " + s + " "
	for i, re := range pyLiteralRes {
		repl := "${1}" + pyLiterals[i].to + "${2}"
		// Two passes: adjacent matches share a delimiter rune, which the
		// first pass consumes.
		s = re.ReplaceAllString(s, repl)
		s = re.ReplaceAllString(s, repl)
	}
	s = strings.TrimSpace(s)
	return trailingCommaRe.ReplaceAllString(s, "$1")
}
