// Package fetch downloads candidate PDFs, verifies them, and tracks
// which document versions have already been processed.
package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const userAgent = "campusfeed/1.0 (+https://github.com/campusfeed/campusfeed)"

var pdfMagic = []byte("%PDF")

// Document is a downloaded, verified PDF.
type Document struct {
	URL    string
	Data   []byte
	Digest string // hex SHA-256 of Data
}

// Fetcher downloads PDFs.
type Fetcher struct {
	client *http.Client
}

// New creates a fetcher. A nil client uses a 60s-timeout default.
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch downloads one PDF and verifies it parses. The response must
// either carry a PDF content type or start with the %PDF magic.
func (f *Fetcher) Fetch(ctx context.Context, pdfURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", pdfURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s returned status %d", pdfURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pdfURL, err)
	}

	if !looksLikePDF(resp.Header.Get("Content-Type"), data) {
		return nil, fmt.Errorf("%s is not a PDF (content type %q)", pdfURL, resp.Header.Get("Content-Type"))
	}
	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		return nil, fmt.Errorf("%s failed PDF validation: %w", pdfURL, err)
	}

	return &Document{
		URL:    pdfURL,
		Data:   data,
		Digest: Digest(data),
	}, nil
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func looksLikePDF(contentType string, data []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return bytes.HasPrefix(data, pdfMagic)
}
