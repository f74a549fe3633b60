package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kmorozov/docprocessor/internal/core/domain"
	"github.com/kmorozov/docprocessor/internal/core/ports"
)

type ExtractDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.FieldExtractor
	pages     *PageDataStore
}

func NewExtractDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.FieldExtractor,
	pages *PageDataStore,
) *ExtractDocumentUseCase {
	return &ExtractDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		pages:     pages,
	}
}

func (uc *ExtractDocumentUseCase) ExtractByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusExtracting, ""); err != nil {
		return fmt.Errorf("set status=extracting: %w", err)
	}

	if err := uc.extractPipeline(ctx, documentID); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ExtractDocumentUseCase) extractPipeline(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	extracted, err := uc.extractor.ExtractPages(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract page fields: %w", err)
	}
	if len(extracted) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "extract page fields", errors.New("document produced zero pages"))
	}

	pageCount, accountCount := 0, 0
	for _, page := range extracted {
		key := domain.PageKey{
			DocumentID:   doc.ID,
			AccountIndex: page.AccountIndex,
			PageNumber:   page.PageNumber,
		}
		if err := uc.saveBaseline(ctx, key, page.Fields); err != nil {
			return err
		}
		if page.PageNumber > pageCount {
			pageCount = page.PageNumber
		}
		if page.AccountIndex+1 > accountCount {
			accountCount = page.AccountIndex + 1
		}
	}

	if err := uc.repo.SetLayout(ctx, doc.ID, pageCount, accountCount); err != nil {
		return fmt.Errorf("save document layout: %w", err)
	}
	return nil
}

// saveBaseline writes the extracted field mapping unless a human already
// edited this page; a re-extraction must not clobber corrections.
func (uc *ExtractDocumentUseCase) saveBaseline(ctx context.Context, key domain.PageKey, fields map[string]domain.FieldRecord) error {
	existing, err := uc.pages.LoadRecord(ctx, key)
	switch {
	case err == nil && existing.Edited:
		return nil
	case err != nil && !domain.IsKind(err, domain.ErrPageNotFound):
		return fmt.Errorf("check existing page record: %w", err)
	}

	record := domain.PageRecord{Data: fields}
	if err := uc.pages.SavePageRecord(ctx, key, record); err != nil {
		return fmt.Errorf("save extraction baseline: %w", err)
	}
	return nil
}

func (uc *ExtractDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ExtractDocumentUseCase) markFailed(ctx context.Context, documentID string, extractErr error) error {
	if extractErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, extractErr.Error())
}
