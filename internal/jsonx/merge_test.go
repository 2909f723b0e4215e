package jsonx

import (
	"reflect"
	"testing"
)

func TestMergeObjects(t *testing.T) {
	a := map[string]any{"a": float64(1), "nested": map[string]any{"x": float64(1)}}
	b := map[string]any{"b": float64(2), "nested": map[string]any{"y": float64(2)}}
	got := Merge(a, b)
	want := map[string]any{
		"a": float64(1),
		"b": float64(2),
		"nested": map[string]any{"x": float64(1), "y": float64(2)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
}

func TestMergeEmptyObjectIdentity(t *testing.T) {
	x := map[string]any{"a": float64(1), "b": []any{"x"}}
	if got := Merge(map[string]any{}, x); !reflect.DeepEqual(got, x) {
		t.Errorf("Merge({}, x) = %v, want %v", got, x)
	}
	if got := Merge(x, map[string]any{}); !reflect.DeepEqual(got, x) {
		t.Errorf("Merge(x, {}) = %v, want %v", got, x)
	}
}

func TestMergeScalarsFavorLater(t *testing.T) {
	if got := Merge("old", "new"); got != "new" {
		t.Errorf("Merge(old, new) = %v, want new", got)
	}
	if got := Merge(float64(1), float64(2)); got != float64(2) {
		t.Errorf("Merge(1, 2) = %v, want 2", got)
	}
	// Type mismatch also favors the later value.
	if got := Merge(map[string]any{"a": float64(1)}, "scalar"); got != "scalar" {
		t.Errorf("Merge(obj, scalar) = %v, want scalar", got)
	}
}

func TestMergeArrayDedup(t *testing.T) {
	got := Merge([]any{float64(1), float64(2)}, []any{float64(2), float64(3)})
	want := []any{float64(1), float64(2), float64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge([1,2], [2,3]) = %v, want %v", got, want)
	}
}

func TestMergeArrayDedupIgnoresKeyOrder(t *testing.T) {
	// Structurally equal objects with different key insertion order are
	// duplicates: the dedup key is a sorted-key serialization.
	a := []any{map[string]any{"day": "Mon", "name": "math"}}
	b := []any{map[string]any{"name": "math", "day": "Mon"}}
	got := Merge(a, b)
	if list, ok := got.([]any); !ok || len(list) != 1 {
		t.Errorf("Merge() = %v, want single-element array", got)
	}
}

func TestMergeLeftFoldStable(t *testing.T) {
	a := map[string]any{"a": float64(1)}
	b := map[string]any{"b": float64(2)}
	c := map[string]any{"a": float64(3)}
	pairwise := Merge(Merge(a, b), c)
	folded := MergeAll(a, b, c)
	if !reflect.DeepEqual(pairwise, folded) {
		t.Errorf("MergeAll = %v, pairwise = %v", folded, pairwise)
	}
	want := map[string]any{"a": float64(3), "b": float64(2)}
	if !reflect.DeepEqual(folded, want) {
		t.Errorf("MergeAll = %v, want %v", folded, want)
	}
}

func TestMergeNotCommutative(t *testing.T) {
	a := map[string]any{"k": "first"}
	b := map[string]any{"k": "second"}
	ab := Merge(a, b).(map[string]any)
	ba := Merge(b, a).(map[string]any)
	if ab["k"] != "second" || ba["k"] != "first" {
		t.Errorf("Merge order not respected: ab=%v ba=%v", ab, ba)
	}
}
