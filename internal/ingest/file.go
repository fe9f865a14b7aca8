package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// supportedExtensions are the source formats accepted for ingestion.
// Knowledge sources are prose, not code.
var supportedExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// IngestFile reads one file and ingests it as a document titled after
// the file name. The file is read through an os.Root opened at its
// parent directory, which blocks path traversal and symlink escapes.
func (i *Ingestor) IngestFile(ctx context.Context, path string, profileID *uuid.UUID, sourceURL string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !supportedExtensions[ext] {
		return 0, fmt.Errorf("unsupported file type %q", ext)
	}

	root, err := os.OpenRoot(filepath.Dir(absPath))
	if err != nil {
		return 0, fmt.Errorf("opening root directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	fileName := filepath.Base(absPath)
	content, err := root.ReadFile(fileName)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", fileName, err)
	}

	title := strings.TrimSuffix(fileName, ext)
	return i.IngestDocument(ctx, Document{
		ProfileID: profileID,
		Title:     title,
		URL:       sourceURL,
		Content:   string(content),
	})
}
