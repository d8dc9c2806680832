// Package storage keeps uploaded research documents.
//
// Objects are addressed by a slash-separated key ("research_docs/1712.pdf")
// and are publicly readable at PublicURL + "/" + key once Put returns.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Object describes a stored file.
type Object struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Store is the object storage boundary. The filesystem implementation below
// is the only one today; a bucket-backed one would satisfy the same contract.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (*Object, error)
}

var ErrInvalidKey = errors.New("storage: invalid object key")

// FileStore writes objects under a root directory. The server exposes that
// directory read-only under /media/.
type FileStore struct {
	root      string
	publicURL string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates root if needed.
func NewFileStore(root, publicURL string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating root %s: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolving root %s: %w", root, err)
	}
	return &FileStore{root: abs, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Root is the directory served under /media/.
func (s *FileStore) Root() string {
	return s.root
}

// URL returns the public address of key.
func (s *FileStore) URL(key string) string {
	return s.publicURL + "/" + key
}

// Put streams body to disk and returns the object's public URL.
//
// WRITE PATH:
//  1. copy into a temp file in the target directory, hashing on the way
//  2. fsync and close
//  3. rename over the final name, so readers never see a partial file
//
// Cancelling ctx stops the copy between reads and removes the temp file.
// contentType is not persisted: the file server derives it from the
// extension.
func (s *FileStore) Put(ctx context.Context, key, contentType string, body io.Reader) (*Object, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("storage: creating temp file for %s: %w", key, err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), &ctxReader{ctx: ctx, r: body})
	if err != nil {
		return nil, fmt.Errorf("storage: writing %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("storage: syncing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("storage: closing %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, fmt.Errorf("storage: setting mode on %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, fmt.Errorf("storage: moving %s into place: %w", key, err)
	}
	committed = true

	return &Object{
		Key:    key,
		URL:    s.URL(key),
		Size:   size,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// resolve maps a key to a path inside root. Absolute keys, ".." segments
// and backslashes are rejected, so a key can never escape the root.
func (s *FileStore) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return full, nil
}

// ctxReader fails the next Read once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
