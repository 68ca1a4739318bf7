// Package media stores kiosk artifacts on local disk: captured photo
// uploads, generated portraits and videos, and the placeholder assets used
// in mock mode. References handed to other components are URLs under
// /media, optionally prefixed with a public base URL for QR sharing.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrTooLarge is returned when an upload exceeds the configured size cap.
var ErrTooLarge = errors.New("upload too large")

// Fetcher downloads a remote artifact. Implemented by the request client.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Store manages the media directory tree.
type Store struct {
	root          string
	publicBaseURL string
	maxUpload     int64
	fetcher       Fetcher
}

// NewStore creates the store and its directory layout.
func NewStore(root, publicBaseURL string, maxUploadBytes int64, fetcher Fetcher) (*Store, error) {
	for _, dir := range []string{
		filepath.Join(root, "uploads"),
		filepath.Join(root, "result", "images"),
		filepath.Join(root, "result", "videos"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media dir: %w", err)
		}
	}
	return &Store{
		root:          root,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxUpload:     maxUploadBytes,
		fetcher:       fetcher,
	}, nil
}

// ResultRoot returns the directory served under /media.
func (s *Store) ResultRoot() string {
	return filepath.Join(s.root, "result")
}

// SaveUpload streams a captured photo to disk under the given capture name,
// enforcing the size cap and normalizing it for the generation model.
// Returns the local file path.
func (s *Store) SaveUpload(r io.Reader, name string) (string, error) {
	limited := io.LimitReader(r, s.maxUpload+1)

	data, err := PreparePortrait(limited)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > s.maxUpload {
		return "", ErrTooLarge
	}

	dst := filepath.Join(s.root, "uploads", name+".jpeg")
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return dst, nil
}

// Remove deletes a temporary capture once the pipeline is done with it.
// Paths outside the uploads directory are refused.
func (s *Store) Remove(p string) {
	uploads := filepath.Join(s.root, "uploads")
	if filepath.Dir(filepath.Clean(p)) != uploads {
		slog.Warn("Refusing to remove file outside uploads dir", "path", p)
		return
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove upload", "path", p, "error", err)
	}
}

// SaveImage stores a generated portrait and returns its serveable URL.
func (s *Store) SaveImage(ctx context.Context, name string, data []byte) (string, error) {
	dst := filepath.Join(s.root, "result", "images", name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return s.URLFor(path.Join("images", name)), nil
}

// FetchVideo downloads a remote video artifact into the store and returns
// its serveable URL.
func (s *Store) FetchVideo(ctx context.Context, name, url string) (string, error) {
	data, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to download video: %w", err)
	}

	dst := filepath.Join(s.root, "result", "videos", name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write video: %w", err)
	}
	slog.Info("Video saved", "path", dst, "bytes", len(data))
	return s.URLFor(path.Join("videos", name)), nil
}

// URLFor builds the public URL for a path relative to the result root.
func (s *Store) URLFor(rel string) string {
	u := "/media/" + strings.TrimLeft(rel, "/")
	if s.publicBaseURL != "" {
		return s.publicBaseURL + u
	}
	return u
}
