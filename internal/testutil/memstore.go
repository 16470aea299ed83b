// Package testutil provides shared in-memory test doubles.
package testutil

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
)

// MemStore is an in-memory datastore.Interface used by package tests.
// Behaviour mirrors the GORM stores closely enough for engine logic:
// not-found and state errors carry the same categories.
type MemStore struct {
	mu        sync.Mutex
	Documents map[string]*datastore.Document
	Jobs      map[string]*datastore.JobRecord
	Holds     map[string]*datastore.LegalHold
	Archives  map[string]*datastore.ArchiveRecord
	Events    []datastore.AuditEvent

	// FailOn, when set, makes the named operation return an external-io
	// error; used to exercise partial-failure paths.
	FailOn map[string]bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		Documents: make(map[string]*datastore.Document),
		Jobs:      make(map[string]*datastore.JobRecord),
		Holds:     make(map[string]*datastore.LegalHold),
		Archives:  make(map[string]*datastore.ArchiveRecord),
		FailOn:    make(map[string]bool),
	}
}

func (m *MemStore) fail(op string) error {
	if m.FailOn[op] {
		return errors.Newf("injected failure for %s", op).
			Component("memstore").
			Category(errors.CategoryExternalIO).
			Build()
	}
	return nil
}

// Open implements datastore.Interface.
func (m *MemStore) Open() error { return nil }

// Close implements datastore.Interface.
func (m *MemStore) Close() error { return nil }

// SaveDocument implements datastore.Interface.
func (m *MemStore) SaveDocument(doc *datastore.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SaveDocument"); err != nil {
		return err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	cp := *doc
	m.Documents[doc.ID] = &cp
	return nil
}

// GetDocument implements datastore.Interface.
func (m *MemStore) GetDocument(id string) (*datastore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetDocument"); err != nil {
		return nil, err
	}
	doc, ok := m.Documents[id]
	if !ok {
		return nil, errors.Newf("document %s not found", id).
			Component("memstore").
			Category(errors.CategoryNotFound).
			Build()
	}
	cp := *doc
	return &cp, nil
}

// UpdateDocument implements datastore.Interface.
func (m *MemStore) UpdateDocument(doc *datastore.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateDocument"); err != nil {
		return err
	}
	if _, ok := m.Documents[doc.ID]; !ok {
		return errors.Newf("document %s not found", doc.ID).
			Component("memstore").
			Category(errors.CategoryNotFound).
			Build()
	}
	cp := *doc
	m.Documents[doc.ID] = &cp
	return nil
}

// CompareAndSwapStatus implements datastore.Interface.
func (m *MemStore) CompareAndSwapStatus(id string, from, to datastore.Status, preDelete datastore.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CompareAndSwapStatus"); err != nil {
		return err
	}
	doc, ok := m.Documents[id]
	if !ok {
		return errors.Newf("document %s not found", id).
			Component("memstore").
			Category(errors.CategoryNotFound).
			Build()
	}
	if doc.Status != from {
		return errors.Newf("document %s is no longer in status %s", id, from).
			Component("memstore").
			Category(errors.CategoryState).
			Context("operation", fmt.Sprintf("transition %s -> %s", from, to)).
			Build()
	}
	doc.Status = to
	if preDelete != "" {
		doc.PreDeleteStatus = preDelete
	}
	doc.UpdatedAt = time.Now()
	return nil
}

// ListDocumentsCreatedBefore implements datastore.Interface.
func (m *MemStore) ListDocumentsCreatedBefore(cutoff time.Time, statuses []datastore.Status, limit int) ([]datastore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListDocumentsCreatedBefore"); err != nil {
		return nil, err
	}
	allowed := make(map[datastore.Status]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var docs []datastore.Document
	for _, doc := range m.Documents {
		if !doc.CreatedAt.Before(cutoff) {
			continue
		}
		if len(statuses) > 0 && !allowed[doc.Status] {
			continue
		}
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// SaveJobRecord implements datastore.Interface.
func (m *MemStore) SaveJobRecord(job *datastore.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.Jobs[job.ID] = &cp
	return nil
}

// ListJobRecords implements datastore.Interface.
func (m *MemStore) ListJobRecords(jobRef, vehiclePlate, date string) ([]datastore.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListJobRecords"); err != nil {
		return nil, err
	}
	var jobs []datastore.JobRecord
	for _, job := range m.Jobs {
		if jobRef != "" && job.JobRef != jobRef {
			continue
		}
		if vehiclePlate != "" && job.VehiclePlate != vehiclePlate {
			continue
		}
		if date != "" && job.JobDate != date {
			continue
		}
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// CreateLegalHold implements datastore.Interface.
func (m *MemStore) CreateLegalHold(hold *datastore.LegalHold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateLegalHold"); err != nil {
		return err
	}
	cp := *hold
	m.Holds[hold.ID] = &cp
	return nil
}

// GetLegalHold implements datastore.Interface.
func (m *MemStore) GetLegalHold(id string) (*datastore.LegalHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.Holds[id]
	if !ok {
		return nil, errors.Newf("legal hold %s not found", id).
			Component("memstore").
			Category(errors.CategoryNotFound).
			Build()
	}
	cp := *hold
	return &cp, nil
}

// UpdateLegalHold implements datastore.Interface.
func (m *MemStore) UpdateLegalHold(hold *datastore.LegalHold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Holds[hold.ID]; !ok {
		return errors.Newf("legal hold %s not found", hold.ID).
			Component("memstore").
			Category(errors.CategoryNotFound).
			Build()
	}
	cp := *hold
	m.Holds[hold.ID] = &cp
	return nil
}

// ActiveHoldForDocument implements datastore.Interface.
func (m *MemStore) ActiveHoldForDocument(documentID string) (*datastore.LegalHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ActiveHoldForDocument"); err != nil {
		return nil, err
	}
	for _, hold := range m.Holds {
		if hold.DocumentID == documentID && hold.Status == datastore.HoldActive {
			cp := *hold
			return &cp, nil
		}
	}
	return nil, nil
}

// ListHoldsForDocument implements datastore.Interface.
func (m *MemStore) ListHoldsForDocument(documentID string) ([]datastore.LegalHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var holds []datastore.LegalHold
	for _, hold := range m.Holds {
		if hold.DocumentID == documentID {
			holds = append(holds, *hold)
		}
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].CreatedAt.Before(holds[j].CreatedAt) })
	return holds, nil
}

// CreateArchiveRecord implements datastore.Interface.
func (m *MemStore) CreateArchiveRecord(rec *datastore.ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateArchiveRecord"); err != nil {
		return err
	}
	cp := *rec
	m.Archives[rec.ID] = &cp
	return nil
}

// GetArchiveRecord implements datastore.Interface.
func (m *MemStore) GetArchiveRecord(id string) (*datastore.ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Archives[id]
	if !ok {
		return nil, errors.Newf("archive record %s not found", id).
			Component("memstore").
			Category(errors.CategoryNotFound).
			Build()
	}
	cp := *rec
	return &cp, nil
}

// UpdateArchiveRecord implements datastore.Interface.
func (m *MemStore) UpdateArchiveRecord(rec *datastore.ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Archives[rec.ID]; !ok {
		return errors.Newf("archive record %s not found", rec.ID).
			Component("memstore").
			Category(errors.CategoryNotFound).
			Build()
	}
	cp := *rec
	m.Archives[rec.ID] = &cp
	return nil
}

// DeleteArchiveRecord implements datastore.Interface.
func (m *MemStore) DeleteArchiveRecord(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Archives, id)
	return nil
}

// SaveAuditEvent implements datastore.Interface.
func (m *MemStore) SaveAuditEvent(event *datastore.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SaveAuditEvent"); err != nil {
		return err
	}
	m.Events = append(m.Events, *event)
	return nil
}

// EventActions returns the recorded audit actions in order; test helper.
func (m *MemStore) EventActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, len(m.Events))
	for i := range m.Events {
		actions[i] = m.Events[i].Action
	}
	return actions
}
