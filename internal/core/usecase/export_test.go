package usecase

import (
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kmorozov/docprocessor/internal/core/domain"
)

func TestExportXLSXBuildsSheetPerAccount(t *testing.T) {
	repo := &extractRepoFake{
		doc: &domain.Document{
			ID:           "doc-1",
			Status:       domain.StatusReady,
			PageCount:    1,
			AccountCount: 2,
		},
	}
	blobs := newBlobFake()
	store := NewPageDataStore(blobs)
	blobs.seed(t, domain.PageKey{DocumentID: "doc-1", AccountIndex: 0, PageNumber: 1}, domain.PageRecord{
		Data: map[string]domain.FieldRecord{
			"Name": {Value: "Alice", Confidence: 85, Source: domain.SourceExtracted},
		},
	})
	// Account 1 has no stored page; the sheet stays empty but present.

	uc := NewExportDocumentUseCase(repo, store)
	raw, err := uc.ExportXLSX(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Account 1" || sheets[1] != "Account 2" {
		t.Fatalf("unexpected sheets: %v", sheets)
	}

	name, err := workbook.GetCellValue("Account 1", "B2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if name != "Name" {
		t.Fatalf("expected field name in B2, got %q", name)
	}
	value, err := workbook.GetCellValue("Account 1", "C2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if value != "Alice" {
		t.Fatalf("expected field value in C2, got %q", value)
	}
}

func TestExportXLSXRejectsUnreadyDocument(t *testing.T) {
	repo := &extractRepoFake{
		doc: &domain.Document{ID: "doc-1", Status: domain.StatusExtracting},
	}
	uc := NewExportDocumentUseCase(repo, NewPageDataStore(newBlobFake()))

	_, err := uc.ExportXLSX(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
