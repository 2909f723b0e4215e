// Package pipeline drives extraction end to end for each document kind:
// render the PDF, run every page through the page processor, persist
// per-page artifacts, and assemble the domain-shaped final outputs.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/campusfeed/campusfeed/internal/imaging"
	"github.com/campusfeed/campusfeed/internal/pageproc"
	"github.com/campusfeed/campusfeed/internal/render"
	"github.com/campusfeed/campusfeed/internal/workdir"
)

// DocConfig describes one document run.
type DocConfig struct {
	Target   string
	DocID    string
	Prompt   string
	CallMode pageproc.CallMode
	Strategy pageproc.MergeStrategy
	DPI      int
}

// DocOutcome collects per-page results of one document run.
type DocOutcome struct {
	// Results holds the successful pages, in page order.
	Results []*pageproc.PageResult
	// FailedPages lists 1-indexed pages whose call or decode failed. Each
	// has an error sidecar on disk.
	FailedPages []int
	PageCount   int
}

// Clean reports whether every page succeeded. Only clean documents are
// recorded in the processed-hash store.
func (o *DocOutcome) Clean() bool {
	return len(o.FailedPages) == 0
}

// DocRunner runs one document through the page processor and owns the
// per-page artifacts on disk.
type DocRunner struct {
	Proc    *pageproc.Processor
	Workdir *workdir.Dir
	Logger  *slog.Logger
}

// Run renders the PDF and processes every page. A failed page writes an
// error sidecar and is excluded from Results; it never aborts the
// remaining pages.
func (r *DocRunner) Run(ctx context.Context, cfg DocConfig, pdfPath string) (*DocOutcome, error) {
	if err := r.Workdir.EnsureDocDirs(cfg.Target, cfg.DocID); err != nil {
		return nil, err
	}

	// Page counting doubles as structural validation; a corrupt PDF is
	// rejected before pdftoppm is invoked.
	pageCount, err := render.PageCount(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", cfg.DocID, err)
	}

	imagesDir := r.Workdir.ImagesDir(cfg.Target, cfg.DocID)
	pagePaths, err := render.RenderPages(ctx, pdfPath, imagesDir, cfg.DPI)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", cfg.DocID, err)
	}
	if len(pagePaths) != pageCount {
		r.Logger.Warn("rendered page count differs from PDF page count",
			"doc", cfg.DocID, "pdf_pages", pageCount, "rendered", len(pagePaths))
	}
	r.Logger.Info("rendered document",
		"target", cfg.Target,
		"doc", cfg.DocID,
		"pages", len(pagePaths),
		"dpi", cfg.DPI)

	outcome := &DocOutcome{PageCount: len(pagePaths)}
	for i, pagePath := range pagePaths {
		pageNum := i + 1

		result, err := r.runPage(ctx, cfg, pageNum, pagePath)
		if err != nil {
			r.Logger.Error("page failed",
				"target", cfg.Target,
				"doc", cfg.DocID,
				"page", pageNum,
				"error", err)
			outcome.FailedPages = append(outcome.FailedPages, pageNum)
			if werr := r.writeErrorSidecar(cfg, pageNum, err); werr != nil {
				r.Logger.Error("failed to write error sidecar", "page", pageNum, "error", werr)
			}
			continue
		}

		if err := r.writePageJSON(cfg, pageNum, result); err != nil {
			return nil, err
		}
		outcome.Results = append(outcome.Results, result)
	}
	return outcome, nil
}

func (r *DocRunner) runPage(ctx context.Context, cfg DocConfig, pageNum int, pagePath string) (*pageproc.PageResult, error) {
	data, err := os.ReadFile(pagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	img, err := imaging.DecodePNG(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered page: %w", err)
	}
	if cfg.CallMode != pageproc.CallModeNone {
		if err := saveCropVariants(pagePath, img); err != nil {
			r.Logger.Warn("failed to save crop variants", "page", pageNum, "error", err)
		}
	}
	return r.Proc.ProcessPage(ctx, pageNum, img, cfg.Prompt, cfg.CallMode, cfg.Strategy)
}

// saveCropVariants persists the half-page crops that the single and
// triple call modes send, next to the full rendered page.
func saveCropVariants(pagePath string, img image.Image) error {
	left, right := imaging.SplitLeftRight(img)
	base := strings.TrimSuffix(pagePath, filepath.Ext(pagePath))
	for _, v := range []struct {
		suffix string
		img    image.Image
	}{
		{"_left", left},
		{"_right", right},
	} {
		data, err := imaging.EncodePNG(v.img)
		if err != nil {
			return err
		}
		if err := os.WriteFile(base+v.suffix+".png", data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (r *DocRunner) writePageJSON(cfg DocConfig, pageNum int, result *pageproc.PageResult) error {
	path := r.Workdir.PageJSONPath(cfg.Target, cfg.DocID, pageNum)
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal page %d result: %w", pageNum, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page result: %w", err)
	}
	return nil
}

func (r *DocRunner) writeErrorSidecar(cfg DocConfig, pageNum int, pageErr error) error {
	path := r.Workdir.PageErrorPath(cfg.Target, cfg.DocID, pageNum)
	return os.WriteFile(path, []byte(pageErr.Error()), 0o644)
}

// writeJSON writes an assembled output file, creating parent directories.
func writeJSON(path string, v any, indent bool) error {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// unwrapResult returns the merged payload of a page result, or the raw
// result when the page carried no merge wrapper.
func unwrapResult(result *pageproc.PageResult) any {
	if result == nil {
		return nil
	}
	if result.Result != nil {
		return result.Result
	}
	return map[string]any{
		"original": result.Original,
		"left":     result.Left,
		"right":    result.Right,
	}
}
