package localfs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kmorozov/docprocessor/internal/core/domain"
)

func TestPutThenGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "page_data/doc-1/account_0/page_1.json"
	payload := []byte(`{"data":{}}`)
	if err := store.Put(context.Background(), key, payload); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get() = %q, want %q", got, payload)
	}
}

func TestGetMissingKeyIsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = store.Get(context.Background(), "page_data/doc-x/account_0/page_1.json")
	if !domain.IsKind(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestPutReplacesWholeObject(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "page_data/doc-1/account_0/page_1.json"
	if err := store.Put(context.Background(), key, []byte("first version, longer payload")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(context.Background(), key, []byte("second")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("expected full replace, got %q", got)
	}
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	base := t.TempDir()
	store, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "page_data/doc-1/account_0/page_1.json"
	if err := store.Put(context.Background(), key, []byte("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(base, "page_data", "doc-1", "account_0"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "page_1.json" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestRejectsUnsafeKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, key := range []string{"../escape.json", "/abs/path.json", "."} {
		if _, err := store.Get(context.Background(), key); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Get(%q): expected ErrInvalidInput, got %v", key, err)
		}
		if err := store.Put(context.Background(), key, []byte("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Put(%q): expected ErrInvalidInput, got %v", key, err)
		}
	}
}
