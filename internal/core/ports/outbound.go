package ports

import (
	"context"
	"io"

	"github.com/kmorozov/docprocessor/internal/core/domain"
)

// BlobStore is the key-addressed store for serialized page records. Get
// reports a missing key as domain.ErrBlobNotFound so callers can tell a
// normal miss apart from a store failure.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// DocumentRepository persists and reads document metadata.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetLayout(ctx context.Context, id string, pageCount, accountCount int) error
}

// ObjectStorage stores source documents as uploaded.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, event domain.IngestEvent) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, domain.IngestEvent) error) error
}

// FieldExtractor turns a stored document into per-page field baselines.
type FieldExtractor interface {
	ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.ExtractedPage, error)
}
