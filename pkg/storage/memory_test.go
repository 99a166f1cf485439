package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryBackend(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()

	if _, err := m.Read(ctx, "doc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read() error = %v, want ErrNotFound", err)
	}

	data := []byte(`{"a":1}`)
	if err := m.Write(ctx, "doc", data); err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'

	got, err := m.Read(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Read() = %s, stored bytes must not alias the caller's slice", got)
	}
	got[0] = 'Y'
	again, _ := m.Read(ctx, "doc")
	if string(again) != `{"a":1}` {
		t.Errorf("Read() = %s, returned bytes must not alias storage", again)
	}

	reads, writes := m.Counts()
	if reads != 3 || writes != 1 {
		t.Errorf("Counts() = (%d, %d), want (3, 1)", reads, writes)
	}
}
