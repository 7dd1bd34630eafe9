package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// blobStore keeps file bodies on an afero filesystem, one immutable blob per write
type blobStore struct {
	fs  afero.Fs
	dir string
}

func newBlobStore(fsys afero.Fs, dir string) *blobStore {
	return &blobStore{fs: fsys, dir: dir}
}

func (b *blobStore) path(key string) string {
	return filepath.Join(b.dir, key[:2], key)
}

// put writes data under a fresh key
func (b *blobStore) put(data []byte) (string, error) {
	key := uuid.NewString()
	p := b.path(key)

	if err := b.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := afero.WriteFile(b.fs, p, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return key, nil
}

func (b *blobStore) get(key string) ([]byte, error) {
	if key == "" {
		return []byte{}, nil
	}
	data, err := afero.ReadFile(b.fs, b.path(key))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// remove deletes blobs, logging instead of failing since the owning rows are already gone
func (b *blobStore) remove(keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := b.fs.Remove(b.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("remove blob", "key", key, "error", err)
		}
	}
}
