// Package pdf extracts page text and metadata from PDF bytes using the
// poppler command-line tools (pdfinfo and pdftotext).
package pdf

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// ErrPDFToolNotFound indicates pdftotext or pdfinfo is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext/pdfinfo not found in PATH (install poppler)")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Extractor reads PDFs through poppler.
type Extractor struct {
	runner CommandRunner
	tmpDir string
}

// New creates an extractor that shells out to poppler.
func New() *Extractor {
	return &Extractor{runner: execRunner{}}
}

// NewWithRunner creates an extractor with a custom command runner.
func NewWithRunner(runner CommandRunner) *Extractor {
	return &Extractor{runner: runner}
}

// CheckAvailable returns ErrPDFToolNotFound if either poppler tool is missing.
func CheckAvailable() error {
	for _, tool := range []string{"pdftotext", "pdfinfo"} {
		if _, err := exec.LookPath(tool); err != nil {
			return ErrPDFToolNotFound
		}
	}
	return nil
}

// InstallInstructions returns platform hints for installing poppler.
func InstallInstructions() string {
	return `pdftotext and pdfinfo are provided by poppler:
  macOS:         brew install poppler
  Debian/Ubuntu: apt install poppler-utils
  Fedora:        dnf install poppler-utils`
}

// Extract returns the cleaned text of every page plus document metadata.
func (e *Extractor) Extract(ctx context.Context, content []byte) (*domain.Extraction, error) {
	if !looksLikePDF(content) {
		return nil, fmt.Errorf("%w: missing %%PDF header", domain.ErrExtraction)
	}

	tmp, err := os.CreateTemp(e.tmpDir, "folio-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	info, err := e.runner.Run(ctx, "pdfinfo", tmp.Name())
	if err != nil {
		return nil, toolError("pdfinfo", err)
	}
	pageCount, meta := parseInfo(info)
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: document has no pages", domain.ErrExtraction)
	}

	text, err := e.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		return nil, toolError("pdftotext", err)
	}

	meta["size_bytes"] = len(content)
	return &domain.Extraction{
		Pages:    splitPages(string(text), pageCount),
		Metadata: meta,
	}, nil
}

func toolError(tool string, err error) error {
	if errors.Is(err, ErrPDFToolNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s failed: %v", domain.ErrExtraction, tool, err)
}

// looksLikePDF checks for the %PDF- marker, which the format allows
// anywhere in the first kilobyte.
func looksLikePDF(content []byte) bool {
	head := content[:min(len(content), 1024)]
	return bytes.Contains(head, []byte("%PDF-"))
}

// infoKeys maps pdfinfo labels onto metadata keys.
var infoKeys = map[string]string{
	"Title":        "title",
	"Author":       "author",
	"Subject":      "subject",
	"Producer":     "producer",
	"Creator":      "creator",
	"CreationDate": "created",
	"ModDate":      "modified",
}

func parseInfo(out []byte) (int, map[string]any) {
	meta := make(map[string]any)
	pages := 0

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		label, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		value = strings.TrimSpace(value)
		if label == "Pages" {
			if n, err := strconv.Atoi(value); err == nil {
				pages = n
			}
			continue
		}
		if key, ok := infoKeys[label]; ok && value != "" {
			meta[key] = value
		}
	}
	return pages, meta
}

// splitPages turns form-feed separated pdftotext output into exactly
// pageCount pages. Missing pages are empty; extra trailing segments are dropped.
func splitPages(text string, pageCount int) []domain.Page {
	parts := strings.Split(text, "\f")
	pages := make([]domain.Page, pageCount)
	for i := range pages {
		pages[i].Number = i + 1
		if i < len(parts) {
			pages[i].Text = cleanText(parts[i])
		}
	}
	return pages
}

var (
	hyphenBreak = regexp.MustCompile(`(\w)-\n(\w)`)
	lineBreak   = regexp.MustCompile(`\s*\n\s*`)
	spaceRun    = regexp.MustCompile(`\s{2,}`)
)

// cleanText joins words hyphenated across line breaks, folds line breaks
// into spaces and collapses whitespace.
func cleanText(s string) string {
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	s = lineBreak.ReplaceAllString(s, " ")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
