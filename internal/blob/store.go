// Package blob coordinates uploaded audio bytes on disk with their metadata
// rows in sqlite. Uploads replace by key, so a slot re-upload never leaks
// orphaned files.
package blob

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"soundpairs/internal/store"
)

const defaultContentType = "application/octet-stream"

// Store writes audio blobs under opaque UUID disk names inside rootDir.
type Store struct {
	rootDir string
	meta    *store.Store
}

// OpenResult pairs blob metadata with its opened file stream.
type OpenResult struct {
	Metadata store.AudioMetadata
	File     *os.File
}

// NewStore creates a blob store rooted at rootDir.
func NewStore(rootDir string, meta *store.Store) (*Store, error) {
	rootDir = strings.TrimSpace(rootDir)
	if rootDir == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if meta == nil {
		return nil, fmt.Errorf("sqlite metadata store is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	slog.Debug("blob store initialized", "dir", rootDir)
	return &Store{rootDir: rootDir, meta: meta}, nil
}

// Put stores the audio bytes under the given key, replacing any previous
// upload of the same key and unlinking its bytes.
func (s *Store) Put(ctx context.Context, name, contentType string, r io.Reader) (store.AudioMetadata, error) {
	if r == nil {
		return store.AudioMetadata{}, fmt.Errorf("audio reader is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.AudioMetadata{}, fmt.Errorf("audio name is required")
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	id, err := newUUID()
	if err != nil {
		return store.AudioMetadata{}, fmt.Errorf("generate blob id: %w", err)
	}

	tempFile, err := os.CreateTemp(s.rootDir, ".audio-write-*")
	if err != nil {
		return store.AudioMetadata{}, fmt.Errorf("create temp audio file: %w", err)
	}
	tempPath := tempFile.Name()

	size, copyErr := io.Copy(tempFile, r)
	closeErr := tempFile.Close()
	if copyErr != nil {
		_ = os.Remove(tempPath)
		return store.AudioMetadata{}, fmt.Errorf("write audio bytes: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tempPath)
		return store.AudioMetadata{}, fmt.Errorf("close audio file: %w", closeErr)
	}

	finalPath := filepath.Join(s.rootDir, id)
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return store.AudioMetadata{}, fmt.Errorf("move audio into place: %w", err)
	}

	meta := store.AudioMetadata{
		Name:        name,
		ContentType: contentType,
		DiskName:    id,
		SizeBytes:   size,
		CreatedAt:   time.Now().UTC(),
	}
	prevDisk, err := s.meta.UpsertAudio(ctx, meta)
	if err != nil {
		_ = os.Remove(finalPath)
		return store.AudioMetadata{}, fmt.Errorf("persist audio metadata: %w", err)
	}
	if prevDisk != "" {
		if err := os.Remove(filepath.Join(s.rootDir, prevDisk)); err != nil && !os.IsNotExist(err) {
			slog.Warn("replaced audio file not removed", "name", name, "disk_name", prevDisk, "err", err)
		}
	}

	slog.Info("audio stored", "name", name, "size", size, "content_type", contentType)
	return meta, nil
}

// Open resolves a key's metadata and opens its on-disk bytes.
func (s *Store) Open(ctx context.Context, name string) (OpenResult, error) {
	meta, err := s.meta.AudioByName(ctx, name)
	if err != nil {
		return OpenResult{}, err
	}

	path := filepath.Join(s.rootDir, meta.DiskName)
	f, err := os.Open(path)
	if err != nil {
		slog.Error("audio file open failed", "name", name, "path", path, "err", err)
		return OpenResult{}, fmt.Errorf("open audio file: %w", err)
	}

	slog.Debug("audio opened", "name", name, "size", meta.SizeBytes)
	return OpenResult{Metadata: meta, File: f}, nil
}

// Delete removes the key's metadata row and its on-disk bytes.
func (s *Store) Delete(ctx context.Context, name string) error {
	meta, err := s.meta.DeleteAudio(ctx, name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.rootDir, meta.DiskName)); err != nil && !os.IsNotExist(err) {
		slog.Warn("audio file not removed", "name", name, "disk_name", meta.DiskName, "err", err)
	}
	slog.Info("audio deleted", "name", name)
	return nil
}

func newUUID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}

	// Set version 4 and variant bits per RFC 4122.
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80

	return fmt.Sprintf(
		"%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		raw[0], raw[1], raw[2], raw[3],
		raw[4], raw[5],
		raw[6], raw[7],
		raw[8], raw[9],
		raw[10], raw[11], raw[12], raw[13], raw[14], raw[15],
	), nil
}
