package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore implements Store on the local filesystem. Objects live at
// root/bucket/key; writes go through a temp file and rename so that a
// crash never leaves a partially written object visible.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a filesystem-backed store rooted at root.
// The directory is created if it does not exist.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root", ErrInvalidKey)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", ErrInvalidKey
	}
	p := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	// Reject keys that escape the store root.
	if !strings.HasPrefix(p, filepath.Clean(s.root)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s/%s", ErrInvalidKey, bucket, key)
	}
	return p, nil
}

// Put writes the object, replacing any existing content.
func (s *FSStore) Put(ctx context.Context, bucket, key string, r io.Reader) (int64, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return written, nil
}

// Get opens the object for streaming reads.
func (s *FSStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, err
	}
	return f, nil
}

// Stat returns the object size in bytes.
func (s *FSStore) Stat(ctx context.Context, bucket, key string) (int64, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return 0, err
	}
	return info.Size(), nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (s *FSStore) Delete(ctx context.Context, bucket, key string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
