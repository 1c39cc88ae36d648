// Package docstore persists rendered documents on local disk,
// zstd-compressed, keyed by generated file ID. Orders and CVs reference
// documents by ID only; the bytes never pass through the database.
package docstore

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cvforge/internal/types"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const fileExt = ".zst"

// Store is a disk-backed compressed blob store. Safe for concurrent use;
// the zstd coders are shared and EncodeAll/DecodeAll are concurrency
// safe.
type Store struct {
	root    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *slog.Logger
}

// NewStore creates the store rooted at dir, creating it if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create document store directory", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: dir, encoder: encoder, decoder: decoder, logger: logger}, nil
}

// Put compresses and stores the document, returning its new file ID.
// The write goes through a temp file and rename so readers never observe
// a partial document.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	id := uuid.NewString()
	path := s.pathFor(id)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create document directory", err)
	}

	compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))

	tmp, err := os.CreateTemp(filepath.Dir(path), "doc-*.tmp")
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create temp document", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to write document", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to close document", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to finalize document", err)
	}

	s.logger.DebugContext(ctx, "document stored",
		"file_id", id, "raw_bytes", len(data), "stored_bytes", len(compressed))
	return id, nil
}

// Get returns the decompressed document bytes.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	if !validID(id) {
		return nil, types.NewAppError(types.ErrCodeNotFoundDocument, "document not found", nil)
	}

	compressed, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDocument, "document not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to read document", err)
	}

	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to decompress document", err)
	}
	return data, nil
}

// Delete removes the document. Deleting a missing document is not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	if err := os.Remove(s.pathFor(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to delete document", err)
	}
	return nil
}

// Close releases the compression coders.
func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}

// pathFor shards documents by the first two ID characters to keep
// directory sizes bounded.
func (s *Store) pathFor(id string) string {
	return filepath.Join(s.root, id[:2], id+fileExt)
}

// validID rejects IDs that could escape the store root.
func validID(id string) bool {
	if len(id) < 8 {
		return false
	}
	return !strings.ContainsAny(id, "/\\.")
}
