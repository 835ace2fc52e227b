package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ghidra_auto_analysis/analysis-service/pkg/result"
)

// ArtifactStore keeps supplementary files on disk, addressed by SHA256.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates root if needed.
func NewArtifactStore(root string) (*ArtifactStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &ArtifactStore{root: root}, nil
}

// Path is where a file with the given hash is stored.
func (s *ArtifactStore) Path(sha256 string) string {
	return filepath.Join(s.root, sha256[:2], sha256)
}

// Put copies the supplementary file into the store and returns its new path.
// Content that is already stored is not copied again.
func (s *ArtifactStore) Put(sup result.Supplementary) (string, error) {
	if len(sup.SHA256) < 2 {
		return "", fmt.Errorf("storing %s: missing sha256", sup.Name)
	}
	dst := s.Path(sup.SHA256)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	src, err := os.Open(sup.Path)
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", sup.Name, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storing %s: %w", sup.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("storing %s: %w", sup.Name, err)
	}
	return dst, nil
}
