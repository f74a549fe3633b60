package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kmorozov/docprocessor/internal/core/domain"
	"github.com/kmorozov/docprocessor/internal/infrastructure/resilience"
)

// Store is a filesystem-backed key-value blob store. Keys may contain
// slashes; each object is one file. Put replaces the whole object with a
// rename, so a concurrent Get never observes a torn record.
type Store struct {
	basePath string
	executor *resilience.Executor
}

type Options struct {
	ResilienceExecutor *resilience.Executor
}

func New(basePath string) (*Store, error) {
	return NewWithOptions(basePath, Options{})
}

func NewWithOptions(basePath string, options Options) (*Store, error) {
	if basePath == "" {
		basePath = "./data/page_data"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{basePath: basePath, executor: options.ResilienceExecutor}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrBlobNotFound, "read blob", err)
		}
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return raw, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	write := func(_ context.Context) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create blob subdir: %w", err)
		}
		tmp := path + ".tmp-" + uuid.NewString()
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("write blob temp file: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("publish blob: %w", err)
		}
		return nil
	}

	if s.executor != nil {
		return s.executor.Execute(ctx, "blob.put", write, classifyFilesystemError)
	}
	return write(ctx)
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob key", fmt.Errorf("unsafe key %q", key))
	}
	return filepath.Join(s.basePath, clean), nil
}
