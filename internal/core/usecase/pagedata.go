package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kmorozov/docprocessor/internal/core/domain"
	"github.com/kmorozov/docprocessor/internal/core/ports"
)

// PageDataStore owns the merge-and-persist contract for per-page field data.
//
// The default write path is read-modify-write without any lock held across
// the blob-store calls: concurrent merges against the same key race and the
// last write wins. That matches the deployed behavior of the system this
// replaces. WithPerKeyLocking serializes merges per page key for callers
// that want to opt out of that trade-off.
type PageDataStore struct {
	blobs ports.BlobStore
	now   func() time.Time
	locks *keyedLocks
}

type PageDataOption func(*PageDataStore)

// WithPerKeyLocking makes concurrent MergeAndPersist calls on the same page
// key run one at a time instead of last-writer-wins.
func WithPerKeyLocking() PageDataOption {
	return func(s *PageDataStore) {
		s.locks = newKeyedLocks()
	}
}

// WithClock overrides the edit timestamp source.
func WithClock(now func() time.Time) PageDataOption {
	return func(s *PageDataStore) {
		s.now = now
	}
}

func NewPageDataStore(blobs ports.BlobStore, opts ...PageDataOption) *PageDataStore {
	s := &PageDataStore{
		blobs: blobs,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MergeAndPersist merges editedFields into the stored record for key and
// writes the result back as a single whole-object replace. Every edited
// field is stamped confidence=100, source=human_corrected; fields not named
// in editedFields keep their stored value and provenance. The complete
// merged mapping is returned so callers can re-render without a second read.
func (s *PageDataStore) MergeAndPersist(
	ctx context.Context,
	key domain.PageKey,
	editedFields map[string]any,
	actionType string,
) (map[string]domain.FieldRecord, error) {
	if err := validateEdits(editedFields); err != nil {
		return nil, err
	}

	if s.locks != nil {
		unlock := s.locks.lock(key)
		defer unlock()
	}

	merged := s.baselineFields(ctx, key)
	for name, value := range editedFields {
		merged[name] = domain.FieldRecord{
			Value:      value,
			Confidence: domain.HumanConfidence,
			Source:     domain.SourceHumanCorrected,
		}
	}

	editedAt := s.now()
	record := domain.PageRecord{
		Data:       merged,
		Edited:     true,
		EditedAt:   &editedAt,
		ActionType: actionType,
	}
	if err := s.put(ctx, key, record); err != nil {
		return nil, err
	}
	return merged, nil
}

// Load returns the stored field mapping for key. A page that was never
// extracted or edited surfaces as domain.ErrPageNotFound; a store failure
// surfaces as domain.ErrTemporary so callers can tell the two apart.
func (s *PageDataStore) Load(ctx context.Context, key domain.PageKey) (map[string]domain.FieldRecord, error) {
	record, err := s.LoadRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	return record.Data, nil
}

// LoadRecord returns the full stored record, edit metadata included, with
// the same not-found/temporary error contract as Load.
func (s *PageDataStore) LoadRecord(ctx context.Context, key domain.PageKey) (*domain.PageRecord, error) {
	raw, err := s.blobs.Get(ctx, key.BlobKey())
	if err != nil {
		if domain.IsKind(err, domain.ErrBlobNotFound) {
			return nil, domain.WrapError(domain.ErrPageNotFound, "load page data", err)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "load page data", err)
	}

	var record domain.PageRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode page record %s: %w", key, err)
	}
	return &record, nil
}

// SavePageRecord persists an extraction baseline, fully replacing any prior
// record at the page's canonical key.
func (s *PageDataStore) SavePageRecord(ctx context.Context, key domain.PageKey, record domain.PageRecord) error {
	return s.put(ctx, key, record)
}

// baselineFields fetches the existing mapping to merge into. Both "no record
// yet" and a failed read collapse to an empty baseline here: the first edit
// of a page is a normal case, and the merge path deliberately does not fail
// on a degraded read. Load keeps the distinction for callers that need it.
func (s *PageDataStore) baselineFields(ctx context.Context, key domain.PageKey) map[string]domain.FieldRecord {
	raw, err := s.blobs.Get(ctx, key.BlobKey())
	if err != nil {
		if !domain.IsKind(err, domain.ErrBlobNotFound) {
			slog.Warn("page_data_read_failed", "page", key.String(), "error", err)
		}
		return make(map[string]domain.FieldRecord)
	}

	var record domain.PageRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		slog.Warn("page_data_decode_failed", "page", key.String(), "error", err)
		return make(map[string]domain.FieldRecord)
	}
	return record.CloneData()
}

func (s *PageDataStore) put(ctx context.Context, key domain.PageKey, record domain.PageRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode page record %s: %w", key, err)
	}
	if err := s.blobs.Put(ctx, key.BlobKey(), raw); err != nil {
		return fmt.Errorf("persist page record %s: %w", key, err)
	}
	return nil
}

func validateEdits(editedFields map[string]any) error {
	if len(editedFields) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate edits", errors.New("empty edit set"))
	}
	for name := range editedFields {
		if strings.TrimSpace(name) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate edits", errors.New("empty field name"))
		}
	}
	return nil
}

// keyedLocks hands out one mutex per page key. Entries are never evicted;
// the map is bounded by the number of distinct pages edited over the
// process lifetime.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[domain.PageKey]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[domain.PageKey]*sync.Mutex)}
}

func (k *keyedLocks) lock(key domain.PageKey) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
