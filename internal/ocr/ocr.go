// Package ocr supplies best-effort reference text for a page image. OCR
// output is advisory context for the extraction prompt, never ground
// truth: providers return an empty string on failure instead of an error.
package ocr

import "context"

// Provider extracts markdown text from a page image.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// PageText returns best-effort markdown for the image. An empty
	// string means OCR was unavailable or failed; it never aborts page
	// processing.
	PageText(ctx context.Context, image []byte, pageNum int) string
}

// Nop is the default provider when OCR is not configured.
type Nop struct{}

func (Nop) Name() string { return "none" }

func (Nop) PageText(ctx context.Context, image []byte, pageNum int) string { return "" }

var _ Provider = Nop{}
