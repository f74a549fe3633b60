package ports

import (
	"context"
	"io"

	"github.com/kmorozov/docprocessor/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// PageDataService is the inbound contract for the page-data merge protocol.
type PageDataService interface {
	MergeAndPersist(ctx context.Context, key domain.PageKey, editedFields map[string]any, actionType string) (map[string]domain.FieldRecord, error)
	Load(ctx context.Context, key domain.PageKey) (map[string]domain.FieldRecord, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]domain.Document, error)
}

// DocumentExtractor is the inbound contract for asynchronous field extraction.
type DocumentExtractor interface {
	ExtractByID(ctx context.Context, documentID string) error
}
