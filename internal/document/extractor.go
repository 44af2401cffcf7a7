package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// MaxFileSize is the largest upload accepted.
const MaxFileSize = 10 << 20

var (
	// ErrExtraction means no text could be read from the source.
	ErrExtraction = errors.New("text extraction failed")

	// ErrTooLarge is returned, wrapped in ErrExtraction, for files over the limit.
	ErrTooLarge = errors.New("file exceeds upload limit")
)

// Extractor reads text out of uploaded files.
type Extractor struct {
	maxSize int64
	log     *zap.Logger
}

func NewExtractor(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{maxSize: MaxFileSize, log: log}
}

// Extract reads the file at path. PDFs are parsed page by page; .txt and .md
// files are taken as is.
func (e *Extractor) Extract(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if info.Size() > e.maxSize {
		return nil, fmt.Errorf("%w: %w (%d bytes)", ErrExtraction, ErrTooLarge, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return e.ExtractBytes(ctx, filepath.Base(path), data)
}

// ExtractBytes is Extract for an upload already held in memory.
func (e *Extractor) ExtractBytes(ctx context.Context, name string, data []byte) (*Document, error) {
	if int64(len(data)) > e.maxSize {
		return nil, fmt.Errorf("%w: %w (%d bytes)", ErrExtraction, ErrTooLarge, len(data))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := Metadata{
		Title:         strings.TrimSuffix(name, filepath.Ext(name)),
		SourcePath:    name,
		FileSizeBytes: int64(len(data)),
		Key:           contentKey(data),
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		meta.SourceFormat = "text"
		if strings.TrimSpace(string(data)) == "" {
			return nil, fmt.Errorf("%w: %s is empty", ErrExtraction, name)
		}
		return newDocument(string(data), meta), nil
	default:
		meta.SourceFormat = "pdf"
		return e.extractPDF(ctx, bytes.NewReader(data), int64(len(data)), meta)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, r io.ReaderAt, size int64, meta Metadata) (*Document, error) {
	reader, err := openPDF(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExtraction, meta.SourcePath, err)
	}

	total := reader.NumPage()
	meta.PageCount = &total

	var pages []string
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := pageText(reader, i)
		if err != nil {
			meta.SkippedPages = append(meta.SkippedPages, i)
			e.log.Warn("skipping unreadable page",
				zap.String("file", meta.SourcePath),
				zap.Int("page", i),
				zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no readable text in %s", ErrExtraction, meta.SourcePath)
	}

	e.log.Info("extracted document",
		zap.String("file", meta.SourcePath),
		zap.Int("pages", total),
		zap.Int("skipped", len(meta.SkippedPages)))

	return newDocument(strings.Join(pages, "\n\n"), meta), nil
}

// openPDF guards against the parser panicking on malformed input.
func openPDF(r io.ReaderAt, size int64) (reader *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("corrupt pdf: %v", p)
		}
	}()
	return pdf.NewReader(r, size)
}

func pageText(reader *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("page %d: %v", i, p)
		}
	}()

	page := reader.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
