package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Document is the extracted text of an uploaded file.
type Document struct {
	Content  string
	Preview  string
	Metadata Metadata
}

// Metadata contains document metadata
type Metadata struct {
	Title         string    `json:"title"`
	SourcePath    string    `json:"source_path"`
	SourceFormat  string    `json:"source_format"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	PageCount     *int      `json:"page_count,omitempty"`
	SkippedPages  []int     `json:"skipped_pages,omitempty"`
	WordCount     int       `json:"word_count"`
	Key           string    `json:"key"`
	ExtractedAt   time.Time `json:"extracted_at"`
}

// FileSizeHuman returns human-readable file size
func (m Metadata) FileSizeHuman() string {
	bytes := m.FileSizeBytes
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}

// Key identifies the uploaded bytes. The same file uploaded twice has the same key.
func (d *Document) Key() string {
	return d.Metadata.Key
}

// FromText wraps already extracted text, e.g. a pasted description.
func FromText(title, text string) *Document {
	return newDocument(text, Metadata{
		Title:         title,
		SourceFormat:  "text",
		FileSizeBytes: int64(len(text)),
		Key:           contentKey([]byte(text)),
	})
}

func newDocument(content string, meta Metadata) *Document {
	content = strings.TrimSpace(content)
	meta.WordCount = len(strings.Fields(content))
	meta.ExtractedAt = time.Now()
	return &Document{
		Content:  content,
		Preview:  preview(content, 500),
		Metadata: meta,
	}
}

func contentKey(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
