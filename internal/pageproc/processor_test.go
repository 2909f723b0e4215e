package pageproc

import (
	"context"
	"errors"
	"image"
	"reflect"
	"strings"
	"testing"

	"github.com/campusfeed/campusfeed/internal/jsonx"
	"github.com/campusfeed/campusfeed/internal/providers"
)

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 40, 20))
}

func TestProcessPageNoneModeFencedJSON(t *testing.T) {
	mock := providers.NewMockCaller("```json\n{\"a\":1}\n```")
	p := New(Config{Caller: mock})

	got, err := p.ProcessPage(t.Context(), 1, testImage(), "extract", CallModeNone, MergeDeep)
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	want := map[string]any{"a": float64(1)}
	if !reflect.DeepEqual(got.Result, want) {
		t.Errorf("Result = %v, want %v", got.Result, want)
	}
	if got.Page != 1 {
		t.Errorf("Page = %d, want 1", got.Page)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("calls = %d, want 1", mock.RequestCount())
	}
	if imgs := mock.Requests()[0].Images; len(imgs) != 1 || imgs[0].Name != VariantFull {
		t.Errorf("none mode images = %v, want single full variant", imgs)
	}
}

func TestProcessPageTripleDeepMerge(t *testing.T) {
	mock := providers.NewMockCaller(`{"a":1}`, `{"b":2}`, `{"a":3}`)
	p := New(Config{Caller: mock})

	got, err := p.ProcessPage(t.Context(), 3, testImage(), "extract", CallModeTriple, MergeDeep)
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	want := map[string]any{"a": float64(3), "b": float64(2)}
	if !reflect.DeepEqual(got.Result, want) {
		t.Errorf("Result = %v, want %v (right scalar wins)", got.Result, want)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("calls = %d, want 3", mock.RequestCount())
	}

	// Call order and crop disambiguation: original, left, right.
	reqs := mock.Requests()
	order := []struct{ variant, note string }{
		{VariantFull, "元画像"},
		{VariantLeft, "左半分"},
		{VariantRight, "右半分"},
	}
	for i, want := range order {
		if len(reqs[i].Images) != 1 || reqs[i].Images[0].Name != want.variant {
			t.Errorf("call %d image = %v, want %s", i, reqs[i].Images, want.variant)
		}
		if !strings.Contains(reqs[i].Prompt, want.note) {
			t.Errorf("call %d prompt missing crop note %q", i, want.note)
		}
	}
}

func TestProcessPageTripleBundle(t *testing.T) {
	mock := providers.NewMockCaller(`{"a":1}`, `{"b":2}`, `{"a":3}`)
	p := New(Config{Caller: mock})

	got, err := p.ProcessPage(t.Context(), 7, testImage(), "extract", CallModeTriple, MergeBundle)
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if got.Result != nil {
		t.Errorf("bundle result should be nil, got %v", got.Result)
	}
	if !reflect.DeepEqual(got.Original, map[string]any{"a": float64(1)}) {
		t.Errorf("Original = %v", got.Original)
	}
	if !reflect.DeepEqual(got.Left, map[string]any{"b": float64(2)}) {
		t.Errorf("Left = %v", got.Left)
	}
	if !reflect.DeepEqual(got.Right, map[string]any{"a": float64(3)}) {
		t.Errorf("Right = %v", got.Right)
	}
	if got.Page != 7 {
		t.Errorf("Page = %d, want 7", got.Page)
	}
}

func TestProcessPageSingleModeImageOrder(t *testing.T) {
	mock := providers.NewMockCaller(`{"ok":true}`)
	p := New(Config{Caller: mock})

	if _, err := p.ProcessPage(t.Context(), 1, testImage(), "extract", CallModeSingle, MergeDeep); err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("calls = %d, want 1", mock.RequestCount())
	}
	imgs := mock.Requests()[0].Images
	if len(imgs) != 3 {
		t.Fatalf("single mode images = %d, want 3", len(imgs))
	}
	wantOrder := []string{VariantLeft, VariantRight, VariantFull}
	for i, name := range wantOrder {
		if imgs[i].Name != name {
			t.Errorf("image %d = %s, want %s", i, imgs[i].Name, name)
		}
	}
}

func TestProcessPageUnparseableResponse(t *testing.T) {
	mock := providers.NewMockCaller("I could not find any structured data on this page, sorry.")
	rep := &recordingReporter{}
	p := New(Config{Caller: mock, Reporter: rep})

	_, err := p.ProcessPage(t.Context(), 2, testImage(), "extract", CallModeNone, MergeDeep)
	if err == nil {
		t.Fatal("ProcessPage() expected error for prose response")
	}
	var extErr *jsonx.ExtractionError
	if !errors.As(err, &extErr) {
		t.Errorf("error type = %T, want wrapped *jsonx.ExtractionError", err)
	}
	if len(rep.errors) != 1 {
		t.Errorf("reporter errors = %d, want 1", len(rep.errors))
	}
	if len(rep.done) != 0 {
		t.Errorf("reporter done events = %d, want 0", len(rep.done))
	}
}

func TestProcessPageTriplePartialFailureFailsPage(t *testing.T) {
	// Second call returns prose: the page must fail, not commit 2/3.
	mock := providers.NewMockCaller(`{"a":1}`, "no json here at all", `{"a":3}`)
	p := New(Config{Caller: mock})

	_, err := p.ProcessPage(t.Context(), 4, testImage(), "extract", CallModeTriple, MergeDeep)
	if err == nil {
		t.Fatal("ProcessPage() expected error when one of three calls fails")
	}
	if !strings.Contains(err.Error(), VariantLeft) {
		t.Errorf("error should name the failing variant: %v", err)
	}
}

func TestProcessPageOCRAdvisoryPrepend(t *testing.T) {
	mock := providers.NewMockCaller(`{"ok":true}`)
	p := New(Config{Caller: mock, OCR: staticOCR{text: "| A | B |"}})

	if _, err := p.ProcessPage(t.Context(), 1, testImage(), "extract", CallModeNone, MergeDeep); err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	prompt := mock.Requests()[0].Prompt
	if !strings.Contains(prompt, "| A | B |") {
		t.Error("prompt missing OCR reference text")
	}
	if !strings.Contains(prompt, "OCR参考テキスト") {
		t.Error("prompt missing OCR advisory label")
	}
	if !strings.Contains(prompt, "対象ページ番号: 1") {
		t.Error("prompt missing page number")
	}
}

type staticOCR struct{ text string }

func (s staticOCR) Name() string { return "static" }

func (s staticOCR) PageText(ctx context.Context, image []byte, pageNum int) string { return s.text }

type recordingReporter struct {
	starts, done []int
	errors       []error
}

func (r *recordingReporter) OnPageStart(page int)         { r.starts = append(r.starts, page) }
func (r *recordingReporter) OnCallStart(int, string)      {}
func (r *recordingReporter) OnPageError(_ int, err error) { r.errors = append(r.errors, err) }
func (r *recordingReporter) OnPageDone(page int)          { r.done = append(r.done, page) }
