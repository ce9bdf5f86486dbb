package store

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidecharts/tilecache/pkg/logger"
)

const (
	smallTileSize = 1024      // 1KB
	largeTileSize = 50 * 1024 // 50KB
)

func generateTileData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func benchKey(i int) string {
	return fmt.Sprintf("osm/%d/%d/%d", i%20, i%1000, (i*7)%1000)
}

func setupSQLiteStore(b *testing.B) *SQLiteStore {
	b.Helper()
	s, err := NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"), logger.NewNoOp())
	if err != nil {
		b.Fatalf("failed to create sqlite store: %v", err)
	}
	b.Cleanup(func() { s.Close() })
	return s
}

func setupFilesystemStore(b *testing.B) *FilesystemStore {
	b.Helper()
	s, err := NewFilesystemStore(b.TempDir())
	if err != nil {
		b.Fatalf("failed to create filesystem store: %v", err)
	}
	return s
}

func benchmarkSet(b *testing.B, s Store, size int) {
	data := generateTileData(size)
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Set(benchKey(i), data, now); err != nil {
			b.Fatalf("set failed: %v", err)
		}
	}
}

func benchmarkGet(b *testing.B, s Store, size int) {
	data := generateTileData(size)
	now := time.Now()

	for i := 0; i < 100; i++ {
		if err := s.Set(benchKey(i), data, now); err != nil {
			b.Fatalf("set failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := s.Get(benchKey(i % 100)); err != nil {
			b.Fatalf("get failed: %v", err)
		}
	}
}

func BenchmarkSet_SQLite_Small(b *testing.B) {
	benchmarkSet(b, setupSQLiteStore(b), smallTileSize)
}

func BenchmarkSet_Memory_Small(b *testing.B) {
	benchmarkSet(b, NewMemoryStore(), smallTileSize)
}

func BenchmarkSet_Filesystem_Small(b *testing.B) {
	benchmarkSet(b, setupFilesystemStore(b), smallTileSize)
}

func BenchmarkSet_SQLite_Large(b *testing.B) {
	benchmarkSet(b, setupSQLiteStore(b), largeTileSize)
}

func BenchmarkSet_Memory_Large(b *testing.B) {
	benchmarkSet(b, NewMemoryStore(), largeTileSize)
}

func BenchmarkSet_Filesystem_Large(b *testing.B) {
	benchmarkSet(b, setupFilesystemStore(b), largeTileSize)
}

func BenchmarkGet_SQLite_Small(b *testing.B) {
	benchmarkGet(b, setupSQLiteStore(b), smallTileSize)
}

func BenchmarkGet_Memory_Small(b *testing.B) {
	benchmarkGet(b, NewMemoryStore(), smallTileSize)
}

func BenchmarkGet_Filesystem_Small(b *testing.B) {
	benchmarkGet(b, setupFilesystemStore(b), smallTileSize)
}

func BenchmarkGet_SQLite_Large(b *testing.B) {
	benchmarkGet(b, setupSQLiteStore(b), largeTileSize)
}

func BenchmarkGet_Memory_Large(b *testing.B) {
	benchmarkGet(b, NewMemoryStore(), largeTileSize)
}

func BenchmarkGet_Filesystem_Large(b *testing.B) {
	benchmarkGet(b, setupFilesystemStore(b), largeTileSize)
}

// Mixed 80% reads / 20% writes, the typical cache access pattern.
func benchmarkMixed(b *testing.B, s Store) {
	data := generateTileData(smallTileSize)
	now := time.Now()

	for i := 0; i < 50; i++ {
		s.Set(benchKey(i), data, now)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%5 == 0 {
			s.Set(benchKey(i%100), data, now)
		} else {
			s.Get(benchKey(i % 100))
		}
	}
}

func BenchmarkMixed_SQLite(b *testing.B) {
	benchmarkMixed(b, setupSQLiteStore(b))
}

func BenchmarkMixed_Memory(b *testing.B) {
	benchmarkMixed(b, NewMemoryStore())
}

func BenchmarkMixed_Filesystem(b *testing.B) {
	benchmarkMixed(b, setupFilesystemStore(b))
}

func BenchmarkConcurrent_Memory(b *testing.B) {
	s := NewMemoryStore()
	data := generateTileData(smallTileSize)
	now := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%5 == 0 {
				s.Set(benchKey(i%100), data, now)
			} else {
				s.Get(benchKey(i % 100))
			}
			i++
		}
	})
}
