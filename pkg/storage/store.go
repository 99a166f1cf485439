// Package storage provides byte-level document backends and the lockers that
// serialize writers.
//
// A Backend stores whole documents under a name. Every Write replaces the
// stored document atomically: readers observe either the previous or the new
// version, never a partial one. A failed Write leaves the previous version in
// place.
//
// Backends available:
//
//   - FileBackend: one file per document in a directory; temp file + rename.
//   - MemoryBackend: process memory; used in tests and for throwaway servers.
//   - RedisBackend: one string key per document; shared between processes.
//   - S3Backend: one object per document in an S3-compatible bucket.
//   - SQLiteBackend: one row per document in an embedded database.
//
// SnappyBackend wraps any of them to compress documents at rest.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no document is stored under the name.
var ErrNotFound = errors.New("document not found")

// Backend reads and atomically replaces named documents.
type Backend interface {
	// Read returns the stored document or an error wrapping ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write replaces the stored document in one atomic step.
	Write(ctx context.Context, name string, data []byte) error

	// Name is a short identifier for logs and metrics, e.g. "file", "redis".
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// Pinger is implemented by backends that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks b if it implements Pinger and reports success otherwise.
func Ping(ctx context.Context, b Backend) error {
	if p, ok := b.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
