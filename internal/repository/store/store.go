// Package store provides the durable byte storage backends beneath the
// tile cache. A backend only persists blobs and access times; quota and
// eviction policy live in the tilecache package on top.
package store

import "time"

// Entry describes one stored blob without its payload.
type Entry struct {
	Key        string
	Size       int64
	LastAccess time.Time
}

type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, data []byte, access time.Time) error
	Touch(key string, access time.Time) error
	Delete(key string) error
	Entries() ([]Entry, error)
	Clear() error
}
