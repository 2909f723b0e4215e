// Package render rasterizes PDF pages to PNG images. Rasterization shells
// out to pdftoppm (poppler-utils); page counting uses pdfcpu so a corrupt
// document is rejected before any rendering work starts.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultDPI matches the resolution the extraction prompts were tuned on.
const DefaultDPI = 200

// PageCount returns the number of pages in a PDF.
func PageCount(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count for %s: %w", pdfPath, err)
	}
	return count, nil
}

// RenderPages rasterizes every page of a PDF into outDir and returns the
// PNG paths in page order.
func RenderPages(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create render directory: %w", err)
	}

	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", strconv.Itoa(dpi),
		"-q",
		pdfPath,
		prefix,
	)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8")

	if out, err := cmd.CombinedOutput(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("pdftoppm timed out rendering %s", pdfPath)
		}
		return nil, fmt.Errorf("pdftoppm failed for %s: %w: %s", pdfPath, err, out)
	}

	paths, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to glob rendered pages: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages for %s", pdfPath)
	}
	sortByPageNumber(paths)
	return paths, nil
}

// RenderPage rasterizes a single 1-indexed page to outPath.
func RenderPage(ctx context.Context, pdfPath, outPath string, pageNum, dpi int) error {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create render directory: %w", err)
	}

	// pdftoppm appends the extension itself with -singlefile.
	prefix := outPath
	if filepath.Ext(prefix) == ".png" {
		prefix = prefix[:len(prefix)-len(".png")]
	}

	page := strconv.Itoa(pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", strconv.Itoa(dpi),
		"-f", page,
		"-l", page,
		"-singlefile",
		"-q",
		pdfPath,
		prefix,
	)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8")

	if out, err := cmd.CombinedOutput(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("pdftoppm timed out rendering page %d of %s", pageNum, pdfPath)
		}
		return fmt.Errorf("pdftoppm failed for page %d of %s: %w: %s", pageNum, pdfPath, err, out)
	}
	return nil
}

var pageNumRe = regexp.MustCompile(`-(\d+)\.png$`)

// sortByPageNumber orders rendered paths by their numeric page suffix.
// pdftoppm zero-pads inconsistently across versions, so lexicographic
// order is not reliable.
func sortByPageNumber(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		return pageNumOf(paths[i]) < pageNumOf(paths[j])
	})
}

func pageNumOf(path string) int {
	m := pageNumRe.FindStringSubmatch(path)
	if len(m) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
