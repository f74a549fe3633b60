package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kmorozov/docprocessor/internal/core/domain"
)

type extractRepoFake struct {
	doc      *domain.Document
	getErr   error
	statuses []domain.DocumentStatus
	lastErr  string
	pages    int
	accounts int
}

func (f *extractRepoFake) Create(context.Context, *domain.Document) error {
	return errors.New("not implemented")
}

func (f *extractRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *extractRepoFake) List(context.Context, int) ([]domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *extractRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statuses = append(f.statuses, status)
	f.lastErr = errMessage
	return nil
}

func (f *extractRepoFake) SetLayout(_ context.Context, _ string, pageCount, accountCount int) error {
	f.pages = pageCount
	f.accounts = accountCount
	return nil
}

type extractorFake struct {
	pages []domain.ExtractedPage
	err   error
}

func (f *extractorFake) ExtractPages(context.Context, *domain.Document) ([]domain.ExtractedPage, error) {
	return f.pages, f.err
}

func newExtractFixture(t *testing.T, pages []domain.ExtractedPage, extractErr error) (*ExtractDocumentUseCase, *extractRepoFake, *blobFake) {
	t.Helper()
	repo := &extractRepoFake{
		doc: &domain.Document{ID: "doc-1", StoragePath: "doc-1_statement.pdf", Status: domain.StatusUploaded},
	}
	blobs := newBlobFake()
	store := NewPageDataStore(blobs)
	uc := NewExtractDocumentUseCase(repo, &extractorFake{pages: pages, err: extractErr}, store)
	return uc, repo, blobs
}

func TestExtractByIDWritesBaselines(t *testing.T) {
	pages := []domain.ExtractedPage{
		{AccountIndex: 0, PageNumber: 1, Fields: map[string]domain.FieldRecord{
			"Name": {Value: "Alice", Confidence: 85, Source: domain.SourceExtracted},
		}},
		{AccountIndex: 1, PageNumber: 1, Fields: map[string]domain.FieldRecord{
			"Account Number": {Value: "12-9981", Confidence: 90, Source: domain.SourceExtracted},
		}},
	}
	uc, repo, blobs := newExtractFixture(t, pages, nil)

	if err := uc.ExtractByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ExtractByID() error = %v", err)
	}

	if len(repo.statuses) != 2 || repo.statuses[0] != domain.StatusExtracting || repo.statuses[1] != domain.StatusReady {
		t.Fatalf("unexpected status transitions: %v", repo.statuses)
	}
	if repo.pages != 1 || repo.accounts != 2 {
		t.Fatalf("expected layout 1 page / 2 accounts, got %d/%d", repo.pages, repo.accounts)
	}

	record := blobs.storedRecord(t, domain.PageKey{DocumentID: "doc-1", AccountIndex: 1, PageNumber: 1})
	if record.Edited {
		t.Fatalf("baseline must not be marked edited")
	}
	if record.Data["Account Number"].Source != domain.SourceExtracted {
		t.Fatalf("expected extracted provenance, got %+v", record.Data["Account Number"])
	}
}

func TestExtractByIDMarksFailedOnExtractorError(t *testing.T) {
	uc, repo, _ := newExtractFixture(t, nil, errors.New("corrupt pdf"))

	err := uc.ExtractByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	last := repo.statuses[len(repo.statuses)-1]
	if last != domain.StatusFailed {
		t.Fatalf("expected final status failed, got %s", last)
	}
	if repo.lastErr == "" {
		t.Fatalf("expected failure message to be recorded")
	}
}

func TestExtractByIDRejectsZeroPages(t *testing.T) {
	uc, repo, _ := newExtractFixture(t, []domain.ExtractedPage{}, nil)

	err := uc.ExtractByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	last := repo.statuses[len(repo.statuses)-1]
	if last != domain.StatusFailed {
		t.Fatalf("expected final status failed, got %s", last)
	}
}

func TestExtractByIDPreservesHumanEdits(t *testing.T) {
	pages := []domain.ExtractedPage{
		{AccountIndex: 0, PageNumber: 1, Fields: map[string]domain.FieldRecord{
			"Name": {Value: "Alice", Confidence: 85, Source: domain.SourceExtracted},
		}},
	}
	uc, _, blobs := newExtractFixture(t, pages, nil)

	key := domain.PageKey{DocumentID: "doc-1", AccountIndex: 0, PageNumber: 1}
	store := NewPageDataStore(blobs)
	if _, err := store.MergeAndPersist(context.Background(), key, map[string]any{"Name": "Bob"}, "edit"); err != nil {
		t.Fatalf("seed edit error = %v", err)
	}

	if err := uc.ExtractByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ExtractByID() error = %v", err)
	}

	record := blobs.storedRecord(t, key)
	if record.Data["Name"].Value != "Bob" {
		t.Fatalf("re-extraction clobbered a human edit: %+v", record.Data["Name"])
	}
	if record.Data["Name"].Source != domain.SourceHumanCorrected {
		t.Fatalf("expected human provenance to survive, got %+v", record.Data["Name"])
	}
}
