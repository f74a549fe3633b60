package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kmorozov/docprocessor/internal/core/domain"
	"github.com/kmorozov/docprocessor/internal/core/ports"
)

type ExportDocumentUseCase struct {
	repo  ports.DocumentRepository
	pages *PageDataStore
}

func NewExportDocumentUseCase(repo ports.DocumentRepository, pages *PageDataStore) *ExportDocumentUseCase {
	return &ExportDocumentUseCase{repo: repo, pages: pages}
}

// ExportXLSX builds a workbook with one sheet per account, one row per
// field. Pages without a stored record are skipped, store failures abort
// the export.
func (uc *ExportDocumentUseCase) ExportXLSX(ctx context.Context, documentID string) ([]byte, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status != domain.StatusReady {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export document", fmt.Errorf("document status is %s", doc.Status))
	}

	workbook := excelize.NewFile()
	defer workbook.Close()

	for account := 0; account < doc.AccountCount; account++ {
		sheet := fmt.Sprintf("Account %d", account+1)
		if account == 0 {
			if err := workbook.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("name sheet: %w", err)
			}
		} else if _, err := workbook.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("add sheet: %w", err)
		}

		if err := workbook.SetSheetRow(sheet, "A1", &[]any{"Page", "Field", "Value", "Confidence", "Source"}); err != nil {
			return nil, fmt.Errorf("write header row: %w", err)
		}

		row := 2
		for page := 1; page <= doc.PageCount; page++ {
			key := domain.PageKey{DocumentID: doc.ID, AccountIndex: account, PageNumber: page}
			fields, err := uc.pages.Load(ctx, key)
			if err != nil {
				if domain.IsKind(err, domain.ErrPageNotFound) {
					continue
				}
				return nil, fmt.Errorf("load page %s: %w", key, err)
			}

			for _, name := range sortedFieldNames(fields) {
				field := fields[name]
				cell := fmt.Sprintf("A%d", row)
				values := []any{page, name, field.Value, field.Confidence, string(field.Source)}
				if err := workbook.SetSheetRow(sheet, cell, &values); err != nil {
					return nil, fmt.Errorf("write field row: %w", err)
				}
				row++
			}
		}
	}

	buf, err := workbook.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func sortedFieldNames(fields map[string]domain.FieldRecord) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
