// Package ocr implements the text-recognition capability: download the PDF,
// pull its page images with pdfcpu, and run each through Tesseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pdfreportflow/internal/gcp"
	"github.com/Lllllllleong/pdfreportflow/internal/workflow"
)

// pageBreak separates recognized text from consecutive page images.
const pageBreak = "\n\n--- Page Break ---\n\n"

// Config tunes the OCR pass.
type Config struct {
	// Languages passed to Tesseract, e.g. ["eng", "por"]. Empty means the
	// engine default.
	Languages []string
	// Workers bounds the number of concurrent recognition goroutines.
	Workers int
	// DPI is forwarded to Tesseract as user_defined_dpi when > 0.
	DPI int
}

// TesseractExtractor recognizes text in stored PDF documents. Recognition is
// CPU-bound native code, so pages fan out over a bounded worker pool.
type TesseractExtractor struct {
	storageClient *storage.Client
	cfg           Config
}

// NewTesseractExtractor returns an extractor reading sources from GCS.
func NewTesseractExtractor(storageClient *storage.Client, cfg Config) *TesseractExtractor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &TesseractExtractor{storageClient: storageClient, cfg: cfg}
}

// ExtractText downloads the PDF behind gcsURI, extracts its page images and
// returns the concatenated recognized text in page order. A PDF with no
// extractable images yields "" without error. A missing Tesseract runtime
// maps to workflow.ErrDependencyUnavailable; a dangling URI maps to
// workflow.ErrSourceNotFound.
func (e *TesseractExtractor) ExtractText(ctx context.Context, gcsURI string) (string, error) {
	// Probe the Tesseract installation before doing any real work so a
	// missing runtime fails the task with a clear cause.
	if _, err := gosseract.GetAvailableLanguages(); err != nil {
		return "", fmt.Errorf("%w: tesseract runtime not usable: %v", workflow.ErrDependencyUnavailable, err)
	}

	logCtx := slog.With("gcsUri", gcsURI)
	logCtx.Info("Starting OCR process.")

	pdfBytes, err := gcp.DownloadFromGCS(ctx, e.storageClient, gcsURI)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: %v", workflow.ErrSourceNotFound, err)
		}
		return "", err
	}
	logCtx.Info("Downloaded source PDF.", "bytes", len(pdfBytes))

	tempDir, err := os.MkdirTemp("", "ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	imagePaths, err := e.extractPageImages(tempDir, pdfBytes)
	if err != nil {
		return "", err
	}
	if len(imagePaths) == 0 {
		logCtx.Warn("No page images extracted; PDF may be empty or text-only.")
		return "", nil
	}
	logCtx.Info("Extracted page images.", "imageCount", len(imagePaths))

	texts := make([]string, len(imagePaths))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.Workers)
	for i, imgPath := range imagePaths {
		eg.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			text, err := e.recognize(imgPath)
			if err != nil {
				return fmt.Errorf("page image %s: %w", filepath.Base(imgPath), err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", fmt.Errorf("%w: %v", workflow.ErrExtraction, err)
	}

	combined := strings.Join(texts, pageBreak)
	logCtx.Info("OCR completed.", "characters", len(combined))
	return combined, nil
}

// extractPageImages validates/optimizes the PDF and extracts its embedded
// page images into dir, returning their paths in page order.
func (e *TesseractExtractor) extractPageImages(dir string, pdfBytes []byte) ([]string, error) {
	sourcePath := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(sourcePath, pdfBytes, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	optimizedPath := filepath.Join(dir, "optimized.pdf")
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.OptimizeFile(sourcePath, optimizedPath, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to validate/optimize PDF: %v", workflow.ErrExtraction, err)
	}

	imageDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	if err := api.ExtractImagesFile(optimizedPath, imageDir, nil, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to extract page images: %v", workflow.ErrExtraction, err)
	}

	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted images: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			paths = append(paths, filepath.Join(imageDir, entry.Name()))
		}
	}
	sortByPageNumber(paths)
	return paths, nil
}

func (e *TesseractExtractor) recognize(imgPath string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if len(e.cfg.Languages) > 0 {
		if err := client.SetLanguage(e.cfg.Languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if e.cfg.DPI > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(e.cfg.DPI)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := client.SetImage(imgPath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// pageNumberRe matches the page component of pdfcpu's extracted image names
// (e.g. optimized_12_Im0.png).
var pageNumberRe = regexp.MustCompile(`_(\d+)_`)

// sortByPageNumber orders extracted image paths numerically by page so that
// lexical sorting does not interleave page 10 before page 2.
func sortByPageNumber(paths []string) {
	pageOf := func(p string) int {
		m := pageNumberRe.FindStringSubmatch(filepath.Base(p))
		if len(m) != 2 {
			return 0
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0
		}
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool {
		pi, pj := pageOf(paths[i]), pageOf(paths[j])
		if pi != pj {
			return pi < pj
		}
		return paths[i] < paths[j]
	})
}
