package pdffields

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kmorozov/docprocessor/internal/core/domain"
	"github.com/kmorozov/docprocessor/internal/core/ports"
)

// Extractor produces per-page field baselines from a stored document.
// PDFs are read page by page; any other UTF-8 payload is treated as a
// single-page text document.
type Extractor struct {
	storage  ports.ObjectStorage
	template *Template
}

func NewExtractor(storage ports.ObjectStorage, template *Template) *Extractor {
	if template == nil {
		template = DefaultTemplate()
	}
	return &Extractor{storage: storage, template: template}
}

func (e *Extractor) ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.ExtractedPage, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	pageTexts, err := e.pageTexts(doc, raw)
	if err != nil {
		return nil, err
	}
	return e.pagesFromTexts(pageTexts), nil
}

// pagesFromTexts assigns pages to accounts: a page matching the template's
// new-account marker starts the next account section, and page numbering
// restarts at 1 within each section.
func (e *Extractor) pagesFromTexts(pageTexts []string) []domain.ExtractedPage {
	pages := make([]domain.ExtractedPage, 0, len(pageTexts))
	accountIndex := 0
	accountSeen := false
	pageInAccount := 0
	for _, text := range pageTexts {
		if e.template.startsNewAccount(text) {
			if accountSeen {
				accountIndex++
				pageInAccount = 0
			}
			accountSeen = true
		}
		pageInAccount++

		pages = append(pages, domain.ExtractedPage{
			AccountIndex: accountIndex,
			PageNumber:   pageInAccount,
			Fields:       e.matchFields(text),
		})
	}
	return pages
}

func (e *Extractor) pageTexts(doc *domain.Document, raw []byte) ([]string, error) {
	if isPDF(doc.MimeType, raw) {
		return pdfPageTexts(raw)
	}

	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract pages",
			fmt.Errorf("unsupported binary format: %s", doc.Filename))
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

func (e *Extractor) matchFields(pageText string) map[string]domain.FieldRecord {
	fields := make(map[string]domain.FieldRecord)
	for _, rule := range e.template.Fields {
		match := rule.re.FindStringSubmatch(pageText)
		if match == nil {
			continue
		}
		value := strings.TrimSpace(match[1])
		if value == "" {
			continue
		}
		fields[rule.Name] = domain.FieldRecord{
			Value:      value,
			Confidence: rule.Confidence,
			Source:     domain.SourceExtracted,
		}
	}
	return fields
}

func isPDF(mimeType string, raw []byte) bool {
	if strings.Contains(mimeType, "pdf") {
		return true
	}
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

func pdfPageTexts(raw []byte) ([]string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	texts := make([]string, 0, doc.NumPage())
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract text from pdf page %d: %w", i, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}
