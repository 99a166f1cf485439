package storage

import (
	"context"
	"fmt"

	"github.com/golang/snappy"
)

// SnappyBackend compresses documents with snappy block encoding before
// handing them to the wrapped backend.
type SnappyBackend struct {
	inner Backend
}

// NewSnappyBackend wraps inner. Documents written without compression cannot
// be read back through the wrapper.
func NewSnappyBackend(inner Backend) *SnappyBackend {
	return &SnappyBackend{inner: inner}
}

func (s *SnappyBackend) Name() string { return s.inner.Name() + "+snappy" }

func (s *SnappyBackend) Read(ctx context.Context, name string) ([]byte, error) {
	compressed, err := s.inner.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("snappy decode %s: %w", name, err)
	}
	return data, nil
}

func (s *SnappyBackend) Write(ctx context.Context, name string, data []byte) error {
	return s.inner.Write(ctx, name, snappy.Encode(nil, data))
}

func (s *SnappyBackend) Ping(ctx context.Context) error {
	return Ping(ctx, s.inner)
}

func (s *SnappyBackend) Close() error {
	return s.inner.Close()
}
