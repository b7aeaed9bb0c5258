// Package filestore implements the image blob store on the local
// filesystem. Stored images get a short opaque identifier and a stable
// URL-path reference that the HTTP layer serves statically.
package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/phrazzld/imagegen-api/internal/platform/logger"
)

// FileStore persists image bytes under a single directory.
type FileStore struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// New creates a FileStore rooted at dir, creating the directory if needed.
// baseURL is the public path prefix stored references are built from,
// e.g. "/images".
func New(dir, baseURL string, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}

	return &FileStore{
		dir:     dir,
		baseURL: baseURL,
		logger:  log.With(slog.String("component", "filestore")),
	}, nil
}

// Save writes the image bytes to disk and returns a stable identifier and
// the public reference for the stored image.
func (s *FileStore) Save(ctx context.Context, data []byte) (string, string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(data) == 0 {
		return "", "", fmt.Errorf("refusing to store empty image")
	}

	// Short opaque ID; collisions are as unlikely as we need them to be
	// for a per-deployment image directory.
	imageID := uuid.New().String()[:8]
	path := filepath.Join(s.dir, imageID+".png")

	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error("failed to write image file",
			slog.String("error", err.Error()),
			slog.String("image_id", imageID))
		return "", "", fmt.Errorf("failed to write image file: %w", err)
	}

	log.Debug("image stored",
		slog.String("image_id", imageID),
		slog.Int("bytes", len(data)))

	return imageID, s.baseURL + "/" + imageID + ".png", nil
}

// Remove deletes the stored image with the given identifier. Removing an
// image that no longer exists is not an error.
func (s *FileStore) Remove(ctx context.Context, imageID string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if imageID == "" {
		return nil
	}

	path := filepath.Join(s.dir, imageID+".png")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Error("failed to remove image file",
			slog.String("error", err.Error()),
			slog.String("image_id", imageID))
		return fmt.Errorf("failed to remove image file: %w", err)
	}

	return nil
}

// Dir returns the directory images are stored under, for static serving.
func (s *FileStore) Dir() string {
	return s.dir
}
