package signing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository with the same upsert and
// terminal-state semantics as the Mongo implementation. Used in tests
// and available as a storage-free fallback.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[RecordKey]*SignatureRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[RecordKey]*SignatureRecord)}
}

func (r *MemoryRepository) Upsert(_ context.Context, key RecordKey, update RecordUpdate) (*SignatureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	record, ok := r.records[key]
	if !ok {
		record = &SignatureRecord{
			ID:          uuid.NewString(),
			DocumentID:  key.DocumentID,
			SignerEmail: key.SignerEmail,
			UserID:      key.UserID,
			Service:     key.Service,
			CreatedAt:   now,
		}
		r.records[key] = record
	}

	record.UpdatedAt = now
	record.LastStatusCheck = now
	record.RawStatus = update.RawStatus

	if !record.Status.IsTerminal() {
		record.SignerName = update.SignerName
		record.Status = update.Status
		record.Signed = update.Signed
		record.Archived = update.Archived
		if update.SignedAt != nil {
			record.SignedAt = update.SignedAt
		}
		if update.SigningURL != "" {
			record.SigningURL = update.SigningURL
		}
		if update.BlobID != "" {
			record.BlobID = update.BlobID
		}
	}

	copied := *record
	return &copied, nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*SignatureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.records {
		if record.ID == id {
			copied := *record
			return &copied, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *MemoryRepository) FindByDocument(_ context.Context, documentID, service string) ([]SignatureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []SignatureRecord
	for _, record := range r.records {
		if record.DocumentID != documentID || record.DeletedAt != nil {
			continue
		}
		if service != "" && record.Service != service {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) Search(_ context.Context, filter SearchFilter) ([]SignatureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []SignatureRecord
	for _, record := range r.records {
		if record.DeletedAt != nil {
			continue
		}
		if filter.DocumentID != "" && record.DocumentID != filter.DocumentID {
			continue
		}
		if filter.SignerEmail != "" &&
			!strings.Contains(strings.ToLower(record.SignerEmail), strings.ToLower(filter.SignerEmail)) {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Service != "" && record.Service != filter.Service {
			continue
		}
		if filter.UserID != "" && record.UserID != filter.UserID {
			continue
		}
		out = append(out, *record)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if filter.Limit > 0 && int64(len(out)) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) SoftDelete(_ context.Context, id, deletedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.records {
		if record.ID != id {
			continue
		}
		if record.DeletedAt != nil {
			return ErrAlreadyDeleted
		}
		now := time.Now().UTC()
		record.DeletedAt = &now
		record.DeletedBy = deletedBy
		record.UpdatedAt = now
		return nil
	}
	return ErrRecordNotFound
}

func (r *MemoryRepository) ListStale(_ context.Context, cutoff time.Time, limit int64) ([]SignatureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []SignatureRecord
	for _, record := range r.records {
		if record.DeletedAt != nil || record.Status.IsTerminal() {
			continue
		}
		if !record.LastStatusCheck.Before(cutoff) {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastStatusCheck.Before(out[j].LastStatusCheck) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
