package pipeline

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/campusfeed/campusfeed/internal/imaging"
	"github.com/campusfeed/campusfeed/internal/pageproc"
	"github.com/campusfeed/campusfeed/internal/providers"
	"github.com/campusfeed/campusfeed/internal/workdir"
)

func testRunner(t *testing.T) *DocRunner {
	t.Helper()
	wd, err := workdir.New(t.TempDir())
	if err != nil {
		t.Fatalf("workdir.New() error = %v", err)
	}
	return &DocRunner{
		Workdir: wd,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestWritePageArtifacts(t *testing.T) {
	r := testRunner(t)
	cfg := DocConfig{Target: "classes", DocID: "2026-04"}
	if err := r.Workdir.EnsureDocDirs(cfg.Target, cfg.DocID); err != nil {
		t.Fatalf("EnsureDocDirs() error = %v", err)
	}

	result := &pageproc.PageResult{Page: 3, Result: map[string]any{"a": 1.0}}
	if err := r.writePageJSON(cfg, 3, result); err != nil {
		t.Fatalf("writePageJSON() error = %v", err)
	}
	data, err := os.ReadFile(r.Workdir.PageJSONPath(cfg.Target, cfg.DocID, 3))
	if err != nil {
		t.Fatalf("read page JSON: %v", err)
	}
	var got pageproc.PageResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("page JSON invalid: %v", err)
	}
	if got.Page != 3 {
		t.Errorf("page = %d", got.Page)
	}

	if err := r.writeErrorSidecar(cfg, 4, errors.New("page 4 full: no JSON found")); err != nil {
		t.Fatalf("writeErrorSidecar() error = %v", err)
	}
	sidecar, err := os.ReadFile(r.Workdir.PageErrorPath(cfg.Target, cfg.DocID, 4))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if string(sidecar) != "page 4 full: no JSON found" {
		t.Errorf("sidecar = %q", sidecar)
	}
}

func TestDocRunnerRunRejectsInvalidPDF(t *testing.T) {
	r := testRunner(t)
	badPDF := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(badPDF, []byte("not a pdf at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := r.Run(t.Context(), DocConfig{Target: "meals", DocID: "2026-04"}, badPDF)
	if err == nil {
		t.Fatal("Run() should reject a structurally invalid PDF before rendering")
	}
}

func TestSaveCropVariants(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	pagePath := filepath.Join(t.TempDir(), "page-0001.png")

	if err := saveCropVariants(pagePath, img); err != nil {
		t.Fatalf("saveCropVariants() error = %v", err)
	}

	for _, suffix := range []string{"_left", "_right"} {
		path := filepath.Join(filepath.Dir(pagePath), "page-0001"+suffix+".png")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("crop variant missing: %v", err)
		}
		crop, err := imaging.DecodePNG(data)
		if err != nil {
			t.Fatalf("crop variant not a PNG: %v", err)
		}
		if got := crop.Bounds().Dx(); got != 2 {
			t.Errorf("%s width = %d, want 2", suffix, got)
		}
	}
}

func TestUnwrapResult(t *testing.T) {
	merged := &pageproc.PageResult{Page: 1, Result: map[string]any{"a": 1.0}}
	if got := unwrapResult(merged).(map[string]any)["a"]; got != 1.0 {
		t.Errorf("merged unwrap = %v", got)
	}

	bundled := &pageproc.PageResult{
		Page:     1,
		Original: map[string]any{"a": 1.0},
		Left:     map[string]any{"b": 2.0},
		Right:    map[string]any{"a": 3.0},
	}
	got, ok := unwrapResult(bundled).(map[string]any)
	if !ok || got["original"] == nil || got["left"] == nil || got["right"] == nil {
		t.Errorf("bundle unwrap = %v", got)
	}
}

func TestDocOutcomeClean(t *testing.T) {
	clean := &DocOutcome{PageCount: 2, Results: []*pageproc.PageResult{{Page: 1}, {Page: 2}}}
	if !clean.Clean() {
		t.Error("outcome with no failed pages should be clean")
	}
	dirty := &DocOutcome{PageCount: 2, FailedPages: []int{2}}
	if dirty.Clean() {
		t.Error("outcome with failed pages must not be clean")
	}
}

func TestRequestMinimalPayload(t *testing.T) {
	mock := providers.NewMockCaller(
		"説明文です。\n```json\n{\"summary\": \"寮の規則。\", \"sections\": [], \"other_texts\": \"本文\"}\n```",
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	payload, err := RequestMinimalPayload(t.Context(), []providers.Caller{mock}, "# 寮生活規則\n本文", "rule-0001", logger)
	if err != nil {
		t.Fatalf("RequestMinimalPayload() error = %v", err)
	}
	if payload.Summary == nil || *payload.Summary != "寮の規則。" {
		t.Errorf("summary = %v", payload.Summary)
	}
	if payload.OtherTexts != "本文" {
		t.Errorf("other_texts = %q", payload.OtherTexts)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("calls = %d, want 1", mock.RequestCount())
	}
}

func TestRequestMinimalPayloadEmptyMarkdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := RequestMinimalPayload(t.Context(), nil, "  \x00 ", "rule-0001", logger); err == nil {
		t.Error("empty markdown should error before any model call")
	}
}
