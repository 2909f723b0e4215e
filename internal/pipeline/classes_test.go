package pipeline

import (
	"testing"
	"time"

	"github.com/campusfeed/campusfeed/internal/pageproc"
)

func TestMergeTimetablePages(t *testing.T) {
	results := []*pageproc.PageResult{
		{Page: 1, Result: map[string]any{
			"1": map[string]any{
				"A": []any{map[string]any{"day": 0.0}},
				"B": []any{map[string]any{"day": 0.0}},
			},
		}},
		{Page: 2, Result: map[string]any{
			"1": map[string]any{
				"B": []any{map[string]any{"day": 1.0}},
			},
			"2": map[string]any{
				"A": []any{map[string]any{"day": 2.0}},
			},
		}},
	}

	merged := MergeTimetablePages(results)
	if len(merged) != 2 {
		t.Fatalf("grades = %d, want 2", len(merged))
	}
	if len(merged["1"]) != 2 {
		t.Errorf("grade 1 classes = %d, want 2", len(merged["1"]))
	}
	// Page 2 overwrites class B from page 1.
	b := merged["1"]["B"]
	if len(b) != 1 || b[0].(map[string]any)["day"] != 1.0 {
		t.Errorf("grade 1 class B = %v", b)
	}
}

func TestTimetableFiles(t *testing.T) {
	merged := map[string]map[string][]any{
		"1":  {"b": {map[string]any{"day": 0.0}}},
		"3":  {"A": {map[string]any{"day": 0.0}}},
		"3r": {"A": {map[string]any{"day": 1.0}}},
		"x":  {"A": {}},
	}

	// First term of school year 2026.
	april := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	files := TimetableFiles(merged, april)

	if _, ok := files["2026B/1_0.json"]; !ok {
		t.Errorf("missing first-grade file, got %v", keysOf(files))
	}
	if _, ok := files["2024A/3_0.json"]; !ok {
		t.Errorf("missing third-grade file, got %v", keysOf(files))
	}
	// International suffix shares the numeric grade's cohort and filename.
	if tt, ok := files["2024A/3_0.json"]; !ok || len(tt) != 1 {
		t.Errorf("3r entry = %v", tt)
	}
	for path := range files {
		if path == "xA/0_0.json" {
			t.Errorf("non-numeric grade should be skipped")
		}
	}
}

func TestTimetableFilesSecondTerm(t *testing.T) {
	merged := map[string]map[string][]any{"2": {"C": {}}}

	// January belongs to the previous school year, second term.
	january := time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)
	files := TimetableFiles(merged, january)
	if _, ok := files["2025C/2_1.json"]; !ok {
		t.Errorf("got %v, want 2025C/2_1.json", keysOf(files))
	}
}

func keysOf(m map[string][]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
