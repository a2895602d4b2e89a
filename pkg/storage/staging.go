package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// StagingStore holds uploaded request payloads on local disk until the
// request finishes. Every staged file is scoped to a request id and removed
// on both success and failure paths.
type StagingStore struct {
	basePath string
}

// NewStagingStore creates the base directory if missing.
func NewStagingStore(basePath string) (*StagingStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("staging base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &StagingStore{basePath: basePath}, nil
}

// Save writes an uploaded file under a request-specific folder and returns
// its path.
func (f *StagingStore) Save(requestID, filename string, r io.Reader) (string, error) {
	targetDir := filepath.Join(f.basePath, requestID)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("create request dir: %w", err)
	}
	target := filepath.Join(targetDir, safeFilename(filename))

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("write staged file: %w", err)
	}
	return target, nil
}

// Remove deletes all staged files for a request.
func (f *StagingStore) Remove(requestID string) error {
	targetDir := filepath.Join(f.basePath, requestID)
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(targetDir)
}

func safeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimSpace(name)
	if name == "" {
		return "upload"
	}
	return name
}
