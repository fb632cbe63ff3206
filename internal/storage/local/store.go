package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/storage"
)

// Store implements storage.Store using the local filesystem.
type Store struct {
	baseDir string
}

// New creates a new local blob store rooted at baseDir.
func New(baseDir string) storage.Store {
	return &Store{baseDir: baseDir}
}

// Upload writes the document under the given relative path with a random
// prefix and returns a file:// URI for the stored copy.
func (s *Store) Upload(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", common.NewAppError("STORAGE_ERROR", "upload canceled", common.ErrStorage)
	}

	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", common.NewAppError("STORAGE_ERROR", fmt.Sprintf("invalid storage path %q", path), common.ErrStorage)
	}

	dir, name := filepath.Split(clean)
	finalName := randomID() + "_" + name

	dirPath := filepath.Join(s.baseDir, dir)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", common.NewAppError("STORAGE_ERROR", fmt.Sprintf("mkdir: %v", err), common.ErrStorage)
	}

	fullPath := filepath.Join(dirPath, finalName)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", common.NewAppError("STORAGE_ERROR", fmt.Sprintf("write file: %v", err), common.ErrStorage)
	}

	abs, err := filepath.Abs(fullPath)
	if err != nil {
		abs = fullPath
	}
	return "file://" + abs, nil
}

// Open opens a stored document for reading.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := strings.TrimPrefix(uri, "file://")
	if path == "" || strings.Contains(path, "..") {
		return nil, common.NewAppError("STORAGE_ERROR", fmt.Sprintf("invalid storage uri %q", uri), common.ErrStorage)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewAppError("STORAGE_ERROR", fmt.Sprintf("open file: %v", err), common.ErrStorage)
	}
	return f, nil
}

func randomID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
