package domain

import (
	"fmt"
	"time"
)

// FieldSource tags where a field value came from.
type FieldSource string

const (
	SourceExtracted      FieldSource = "extracted"
	SourceHumanCorrected FieldSource = "human_corrected"
)

// HumanConfidence is assigned to every human-corrected field. Automated
// extraction never reaches it, so 100 always means "a person typed this".
const HumanConfidence = 100

// FieldRecord is a single extracted or edited value with its trust score
// and provenance.
type FieldRecord struct {
	Value      any         `json:"value"`
	Confidence int         `json:"confidence"`
	Source     FieldSource `json:"source"`
}

// PageRecord is the persisted unit: the full field mapping for one page of
// one account within a document, plus edit metadata.
type PageRecord struct {
	Data       map[string]FieldRecord `json:"data"`
	Edited     bool                   `json:"edited"`
	EditedAt   *time.Time             `json:"edited_at,omitempty"`
	ActionType string                 `json:"action_type,omitempty"`
}

// CloneData returns a structural copy of the record's field mapping. Callers
// merge into the copy so a stored record is never mutated in place.
func (p *PageRecord) CloneData() map[string]FieldRecord {
	out := make(map[string]FieldRecord, len(p.Data))
	for name, field := range p.Data {
		out[name] = field
	}
	return out
}

// PageKey uniquely identifies a page record.
type PageKey struct {
	DocumentID   string
	AccountIndex int
	PageNumber   int
}

// BlobKey returns the canonical blob-store key for this page.
func (k PageKey) BlobKey() string {
	return fmt.Sprintf("page_data/%s/account_%d/page_%d.json", k.DocumentID, k.AccountIndex, k.PageNumber)
}

func (k PageKey) String() string {
	return fmt.Sprintf("%s/account_%d/page_%d", k.DocumentID, k.AccountIndex, k.PageNumber)
}

// ExtractedPage is the extraction pipeline's output for a single page,
// before any human edit.
type ExtractedPage struct {
	AccountIndex int
	PageNumber   int
	Fields       map[string]FieldRecord
}
