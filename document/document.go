// Package document covers the boundary to context documents. Listing and
// plain-text loading live here; parsing office formats into text is an
// external concern expressed by the Extractor interface, so a docx-capable
// extractor can be plugged in without touching the orchestration core.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deskagent/deskagent/logging"
)

// Extractor turns one document file into context text.
type Extractor interface {
	// Extensions lists the lowercase file extensions (with dot) this
	// extractor understands.
	Extensions() []string
	// Extract returns the plain text content of the file at path.
	Extract(path string) (string, error)
}

// Listing describes the available context documents.
type Listing struct {
	DocumentsDir string   `json:"documents_dir"`
	Files        []string `json:"files"`
	Count        int      `json:"count"`
}

// List returns the sorted filenames under dir matching the given extensions.
// A missing or empty directory yields an empty listing, not an error.
func List(dir string, extensions []string) Listing {
	listing := Listing{DocumentsDir: dir, Files: []string{}}
	if dir == "" {
		return listing
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return listing
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if matchesExtension(entry.Name(), extensions) {
			listing.Files = append(listing.Files, entry.Name())
		}
	}
	sort.Strings(listing.Files)
	listing.Count = len(listing.Files)
	return listing
}

func matchesExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadContext concatenates the extracted text of every matching document
// under dir, each section headed by its filename. Files the extractor cannot
// read are logged and skipped; the remaining documents still load.
func LoadContext(dir string, extractor Extractor, logger logging.Logger) string {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	listing := List(dir, extractor.Extensions())
	var b strings.Builder
	for _, name := range listing.Files {
		text, err := extractor.Extract(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("context document unreadable", "file", name, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- file: %s ---\n%s", name, text)
	}
	return b.String()
}

// TextExtractor is the in-tree Extractor for plain text documents.
type TextExtractor struct{}

// Extensions implements Extractor.
func (TextExtractor) Extensions() []string { return []string{".txt", ".md"} }

// Extract implements Extractor.
func (TextExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
