// Package pageproc turns one rendered document page into one or more
// model calls and reconciles their decoded JSON results into a single
// PageResult. It is stateless across pages; pipelines drive it once per
// page and own persistence of results and error sidecars.
package pageproc

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"github.com/campusfeed/campusfeed/internal/imaging"
	"github.com/campusfeed/campusfeed/internal/jsonx"
	"github.com/campusfeed/campusfeed/internal/ocr"
	"github.com/campusfeed/campusfeed/internal/providers"
)

// CallMode governs how many model invocations occur per page and which
// image variants are sent.
type CallMode string

const (
	// CallModeNone sends a single call with the full page image.
	CallModeNone CallMode = "none"
	// CallModeSingle sends one call carrying left, right and full images
	// together.
	CallModeSingle CallMode = "single"
	// CallModeTriple sends three independent calls, one per variant.
	CallModeTriple CallMode = "triple"
)

// ParseCallMode validates a configured call mode string.
func ParseCallMode(s string) (CallMode, error) {
	switch CallMode(s) {
	case CallModeNone, CallModeSingle, CallModeTriple:
		return CallMode(s), nil
	}
	return "", fmt.Errorf("unknown call mode %q", s)
}

// MergeStrategy decides how triple-mode results combine.
type MergeStrategy string

const (
	// MergeBundle keeps the three decoded results side by side, tagged by
	// source image.
	MergeBundle MergeStrategy = "bundle"
	// MergeDeep folds the results with a deep merge, original first, then
	// left, then right.
	MergeDeep MergeStrategy = "deep"
)

// ParseMergeStrategy validates a configured merge strategy string.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case MergeBundle, MergeDeep:
		return MergeStrategy(s), nil
	}
	return "", fmt.Errorf("unknown merge strategy %q", s)
}

// Image variant names.
const (
	VariantFull  = "full"
	VariantLeft  = "left"
	VariantRight = "right"
)

// cropNotes disambiguate partial crops in the prompt so the model knows
// it is looking at half a page and does not invent the missing side.
var cropNotes = map[string]string{
	VariantFull:  "(この入力は: 元画像)",
	VariantLeft:  "(この入力は: 左半分)",
	VariantRight: "(この入力は: 右半分)",
}

// PageResult is the processor's output for one page. Deep-merged and
// single-call pages populate Result; bundled triple pages populate
// Original/Left/Right.
type PageResult struct {
	Page     int `json:"page"`
	Result   any `json:"result,omitempty"`
	Original any `json:"original,omitempty"`
	Left     any `json:"left,omitempty"`
	Right    any `json:"right,omitempty"`
}

// Config assembles a Processor.
type Config struct {
	Caller   providers.Caller
	OCR      ocr.Provider
	Reporter Reporter

	Temperature float64
	MaxTokens   int
	// Schema optionally requests structured output from the backend.
	Schema json.RawMessage
}

// Processor orchestrates the per-page call/decode/merge sequence.
type Processor struct {
	caller      providers.Caller
	ocr         ocr.Provider
	reporter    Reporter
	temperature float64
	maxTokens   int
	schema      json.RawMessage
}

// New creates a Processor. OCR and Reporter default to no-ops.
func New(cfg Config) *Processor {
	o := cfg.OCR
	if o == nil {
		o = ocr.Nop{}
	}
	r := cfg.Reporter
	if r == nil {
		r = NopReporter{}
	}
	return &Processor{
		caller:      cfg.Caller,
		ocr:         o,
		reporter:    r,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		schema:      cfg.Schema,
	}
}

// ProcessPage runs one page through the configured call mode and merge
// strategy. Any call or decode failure fails the whole page; partial
// triple-mode results are never committed silently.
func (p *Processor) ProcessPage(ctx context.Context, pageNum int, img image.Image, taskPrompt string, mode CallMode, strategy MergeStrategy) (*PageResult, error) {
	p.reporter.OnPageStart(pageNum)

	result, err := p.process(ctx, pageNum, img, taskPrompt, mode, strategy)
	if err != nil {
		p.reporter.OnPageError(pageNum, err)
		return nil, err
	}
	p.reporter.OnPageDone(pageNum)
	return result, nil
}

func (p *Processor) process(ctx context.Context, pageNum int, img image.Image, taskPrompt string, mode CallMode, strategy MergeStrategy) (*PageResult, error) {
	full, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", pageNum, err)
	}

	ocrText := p.ocr.PageText(ctx, full, pageNum)
	prompt := buildPrompt(pageNum, taskPrompt, ocrText)

	switch mode {
	case CallModeNone:
		v, err := p.callAndDecode(ctx, pageNum, prompt, VariantFull,
			[]providers.NamedImage{{Name: VariantFull, Data: full}})
		if err != nil {
			return nil, err
		}
		return &PageResult{Page: pageNum, Result: v}, nil

	case CallModeSingle:
		left, right, err := splitHalves(img)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNum, err)
		}
		// The model sees the crops before the full page.
		images := []providers.NamedImage{
			{Name: VariantLeft, Data: left},
			{Name: VariantRight, Data: right},
			{Name: VariantFull, Data: full},
		}
		v, err := p.callAndDecode(ctx, pageNum, prompt, VariantFull, images)
		if err != nil {
			return nil, err
		}
		return &PageResult{Page: pageNum, Result: v}, nil

	case CallModeTriple:
		left, right, err := splitHalves(img)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNum, err)
		}
		variants := []providers.NamedImage{
			{Name: VariantFull, Data: full},
			{Name: VariantLeft, Data: left},
			{Name: VariantRight, Data: right},
		}
		// Sequential calls, decoded in fold order original -> left ->
		// right. A fixed-index slice keeps that order independent of any
		// future fan-out.
		decoded := make([]any, len(variants))
		for i, variant := range variants {
			v, err := p.callAndDecode(ctx, pageNum,
				prompt+"\n"+cropNotes[variant.Name],
				variant.Name,
				[]providers.NamedImage{variant})
			if err != nil {
				return nil, err
			}
			decoded[i] = v
		}

		if strategy == MergeBundle {
			return &PageResult{
				Page:     pageNum,
				Original: decoded[0],
				Left:     decoded[1],
				Right:    decoded[2],
			}, nil
		}
		return &PageResult{Page: pageNum, Result: jsonx.MergeAll(decoded...)}, nil

	default:
		return nil, fmt.Errorf("page %d: unknown call mode %q", pageNum, mode)
	}
}

// callAndDecode performs one model call and decodes its response.
func (p *Processor) callAndDecode(ctx context.Context, pageNum int, prompt, variant string, images []providers.NamedImage) (any, error) {
	p.reporter.OnCallStart(pageNum, variant)

	text, err := p.caller.Call(ctx, &providers.Request{
		Prompt:      prompt,
		Images:      images,
		Schema:      p.schema,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("page %d %s call: %w", pageNum, variant, err)
	}

	v, err := jsonx.ParseStrictOrRepair(text)
	if err != nil {
		return nil, fmt.Errorf("page %d %s: %w", pageNum, variant, err)
	}
	return v, nil
}

func splitHalves(img image.Image) (left, right []byte, err error) {
	l, r := imaging.SplitLeftRight(img)
	if left, err = imaging.EncodePNG(l); err != nil {
		return nil, nil, err
	}
	if right, err = imaging.EncodePNG(r); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// buildPrompt assembles the final prompt: strict-JSON preamble, page
// number, the task prompt, and optional OCR reference text flagged as
// possibly erroneous.
func buildPrompt(pageNum int, taskPrompt, ocrText string) string {
	var sb strings.Builder
	sb.WriteString("あなたは厳密なJSON出力アシスタントです。出力はJSONのみとし、説明文やコードフェンスを含めないでください。\n")
	fmt.Fprintf(&sb, "対象ページ番号: %d\n\n", pageNum)
	sb.WriteString(taskPrompt)
	if ocrText != "" {
		sb.WriteString("\n\n[OCR参考テキスト]\n以下はOCRによる参考テキストです。誤りを含む可能性があるため、画像の内容を優先してください。\n")
		sb.WriteString(ocrText)
	}
	return sb.String()
}
