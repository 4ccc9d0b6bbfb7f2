package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"face-search-go/config"
)

// Store persists image files and hands back the paths recorded in the
// database.
type Store interface {
	// Save writes data under the given collection and returns the stored path.
	Save(collectionID, filename string, data []byte) (string, error)
	// Load reads back a previously stored path. Paths beginning with http://
	// or https:// are fetched remotely.
	Load(ctx context.Context, path string) ([]byte, error)
	// Remove deletes a stored file. Missing files are not an error.
	Remove(path string) error
}

// LocalStore keeps files on the local filesystem under a data directory.
type LocalStore struct {
	dataDir string
	client  *http.Client
}

func NewLocalStore(cfg config.StorageConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &LocalStore{
		dataDir: cfg.DataDir,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *LocalStore) Save(collectionID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.dataDir, collectionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating collection directory: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing file %s: %w", path, err)
	}

	log.WithFields(log.Fields{
		"path": path,
		"size": len(data),
	}).Debug("Stored image file")

	return path, nil
}

func (s *LocalStore) Load(ctx context.Context, path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return s.fetch(ctx, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}

func (s *LocalStore) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return data, nil
}

func (s *LocalStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file %s: %w", path, err)
	}
	return nil
}
