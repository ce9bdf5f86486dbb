package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilesystemStore writes one file per tile under a root directory,
// using the file mtime as the last-access time.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemStore{root: root}, nil
}

var _ Store = (*FilesystemStore)(nil)

func (s *FilesystemStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FilesystemStore) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *FilesystemStore) Set(key string, data []byte, access time.Time) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// Write-then-rename so a concurrent Get never observes a partial tile.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Chtimes(p, access, access)
}

func (s *FilesystemStore) Touch(key string, access time.Time) error {
	err := os.Chtimes(s.path(key), access, access)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FilesystemStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FilesystemStore) Entries() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Key:        filepath.ToSlash(rel),
			Size:       info.Size(),
			LastAccess: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *FilesystemStore) Clear() error {
	if err := os.RemoveAll(s.root); err != nil {
		return err
	}
	return os.MkdirAll(s.root, 0o755)
}
