// Package fs implements [chatbox.Storage] on the local filesystem. Each key
// is stored in its own file under a single directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/chatbox"
)

const ext = ".kv"

// Interface compliance check.
var _ chatbox.Storage = (*Storage)(nil)

// Storage stores values as files in a directory.
type Storage struct {
	dir string
}

// New creates a Storage rooted at dir, creating the directory if needed.
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("fs: create directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Storage) Dir() string { return s.dir }

// Keys are query-escaped so any key maps to a single flat file name.
func (s *Storage) path(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+ext)
}

// Get reads the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fs: %w", err)
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("fs: key %q: %w", key, chatbox.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fs: read: %w", err)
	}
	return data, nil
}

// Set writes value atomically: it is written to a temp file that then
// replaces the key's file.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fs: %w", err)
	}
	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("fs: create temp file: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("fs: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("fs: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name()) // best-effort cleanup
		return fmt.Errorf("fs: rename temp file: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fs: %w", err)
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("fs: remove: %w", err)
	}
	return nil
}

// GetAll reads every stored key.
func (s *Storage) GetAll(ctx context.Context) (map[string][]byte, error) {
	all := make(map[string][]byte)
	fsys := os.DirFS(s.dir)
	err := doublestar.GlobWalk(fsys, "*"+ext, func(path string, d iofs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(path, ext))
		if err != nil {
			// Not written by this package.
			return nil
		}
		data, err := iofs.ReadFile(fsys, path)
		if errors.Is(err, iofs.ErrNotExist) {
			// Deleted while walking.
			return nil
		}
		if err != nil {
			return err
		}
		all[key] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs: get all: %w", err)
	}
	return all, nil
}
