package jsonx

import (
	"encoding/json"
	"fmt"
)

// Merge combines two parsed JSON values into one.
//
// Objects merge by key union, recursing on keys present in both. Arrays
// concatenate with duplicates removed, first occurrence keeping its
// position. Anything else (scalars, type mismatches) resolves in favor of
// b. Merge is not commutative; callers fold left-to-right over an ordered
// sequence of values.
func Merge(a, b any) any {
	if am, ok := a.(map[string]any); ok {
		if bm, ok := b.(map[string]any); ok {
			out := make(map[string]any, len(am)+len(bm))
			for k, v := range am {
				out[k] = v
			}
			for k, bv := range bm {
				if av, exists := out[k]; exists {
					out[k] = Merge(av, bv)
				} else {
					out[k] = bv
				}
			}
			return out
		}
	}
	if aa, ok := a.([]any); ok {
		if ba, ok := b.([]any); ok {
			return dedupConcat(aa, ba)
		}
	}
	return b
}

// MergeAll folds Merge left-to-right over an ordered sequence. An empty
// sequence yields nil; a single value is returned as-is.
func MergeAll(values ...any) any {
	if len(values) == 0 {
		return nil
	}
	out := values[0]
	for _, v := range values[1:] {
		out = Merge(out, v)
	}
	return out
}

func dedupConcat(a, b []any) []any {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]any, 0, len(a)+len(b))
	for _, list := range [][]any{a, b} {
		for _, item := range list {
			k := dedupKey(item)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// dedupKey produces the identity used for array deduplication: containers
// key on their canonical JSON serialization (encoding/json sorts object
// keys, so key order never distinguishes structurally equal objects),
// scalars on their plain string form.
func dedupKey(item any) string {
	switch item.(type) {
	case map[string]any, []any:
		if b, err := json.Marshal(item); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", item)
}
