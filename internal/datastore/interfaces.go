// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/errors"
)

// Interface abstracts the underlying database implementation and defines
// the operations the engine components need.
type Interface interface {
	Open() error
	Close() error

	// Documents
	SaveDocument(doc *Document) error
	GetDocument(id string) (*Document, error)
	UpdateDocument(doc *Document) error

	// CompareAndSwapStatus atomically moves a document from one status to
	// another, optionally recording the pre-delete status. It fails with a
	// state error when the stored status no longer matches from.
	CompareAndSwapStatus(id string, from, to Status, preDelete Status) error

	// ListDocumentsCreatedBefore returns documents in the given statuses
	// created before the cutoff, oldest first, capped at limit.
	ListDocumentsCreatedBefore(cutoff time.Time, statuses []Status, limit int) ([]Document, error)

	// Job directory
	SaveJobRecord(job *JobRecord) error
	ListJobRecords(jobRef, vehiclePlate, date string) ([]JobRecord, error)

	// Legal holds
	CreateLegalHold(hold *LegalHold) error
	GetLegalHold(id string) (*LegalHold, error)
	UpdateLegalHold(hold *LegalHold) error
	ActiveHoldForDocument(documentID string) (*LegalHold, error)
	ListHoldsForDocument(documentID string) ([]LegalHold, error)

	// Archive records
	CreateArchiveRecord(rec *ArchiveRecord) error
	GetArchiveRecord(id string) (*ArchiveRecord, error)
	UpdateArchiveRecord(rec *ArchiveRecord) error
	DeleteArchiveRecord(id string) error

	// Audit trail
	SaveAuditEvent(event *AuditEvent) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a store instance based on the configured output.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("no database output enabled in configuration").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// performAutoMigration runs GORM auto-migration for every entity.
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&Document{},
		&JobRecord{},
		&LegalHold{},
		&ArchiveRecord{},
		&AuditEvent{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database at %s: %w", dbType, connectionInfo, err)
	}
	getLogger().Info("database schema ready", "type", dbType)
	return nil
}

// SaveDocument inserts a new document row.
func (ds *DataStore) SaveDocument(doc *Document) error {
	if err := ds.DB.Create(doc).Error; err != nil {
		return dbError(err, "save document", doc.ID)
	}
	return nil
}

// GetDocument fetches a document by id.
func (ds *DataStore) GetDocument(id string) (*Document, error) {
	var doc Document
	if err := ds.DB.First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("document %s not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				DocumentContext(id, "get document").
				Build()
		}
		return nil, dbError(err, "get document", id)
	}
	return &doc, nil
}

// UpdateDocument persists all fields of an existing document.
func (ds *DataStore) UpdateDocument(doc *Document) error {
	if err := ds.DB.Save(doc).Error; err != nil {
		return dbError(err, "update document", doc.ID)
	}
	return nil
}

// CompareAndSwapStatus performs the optimistic status swap described on
// the Interface. The WHERE clause on the current status is what makes
// concurrent transitions on the same document serialize safely.
func (ds *DataStore) CompareAndSwapStatus(id string, from, to Status, preDelete Status) error {
	updates := map[string]any{"status": to}
	if preDelete != "" {
		updates["pre_delete_status"] = preDelete
	}
	res := ds.DB.Model(&Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return dbError(res.Error, "transition document", id)
	}
	if res.RowsAffected == 0 {
		return errors.Newf("document %s is no longer in status %s", id, from).
			Component("datastore").
			Category(errors.CategoryState).
			DocumentContext(id, fmt.Sprintf("transition %s -> %s", from, to)).
			Build()
	}
	return nil
}

// ListDocumentsCreatedBefore returns retention-sweep candidates.
func (ds *DataStore) ListDocumentsCreatedBefore(cutoff time.Time, statuses []Status, limit int) ([]Document, error) {
	var docs []Document
	q := ds.DB.Where("created_at < ?", cutoff)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("created_at asc").Find(&docs).Error; err != nil {
		return nil, dbError(err, "list documents for retention", "")
	}
	return docs, nil
}

// SaveJobRecord inserts a job directory row.
func (ds *DataStore) SaveJobRecord(job *JobRecord) error {
	if err := ds.DB.Create(job).Error; err != nil {
		return dbError(err, "save job record", job.ID)
	}
	return nil
}

// ListJobRecords filters the job directory; empty filter values match all.
func (ds *DataStore) ListJobRecords(jobRef, vehiclePlate, date string) ([]JobRecord, error) {
	var jobs []JobRecord
	q := ds.DB.Model(&JobRecord{})
	if jobRef != "" {
		q = q.Where("job_ref = ?", jobRef)
	}
	if vehiclePlate != "" {
		q = q.Where("vehicle_plate = ?", vehiclePlate)
	}
	if date != "" {
		q = q.Where("job_date = ?", date)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, dbError(err, "list job records", "")
	}
	return jobs, nil
}

// CreateLegalHold inserts a hold row.
func (ds *DataStore) CreateLegalHold(hold *LegalHold) error {
	if err := ds.DB.Create(hold).Error; err != nil {
		return dbError(err, "create legal hold", hold.ID)
	}
	return nil
}

// GetLegalHold fetches a hold by id.
func (ds *DataStore) GetLegalHold(id string) (*LegalHold, error) {
	var hold LegalHold
	if err := ds.DB.First(&hold, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("legal hold %s not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("hold_id", id).
				Build()
		}
		return nil, dbError(err, "get legal hold", id)
	}
	return &hold, nil
}

// UpdateLegalHold persists all fields of an existing hold.
func (ds *DataStore) UpdateLegalHold(hold *LegalHold) error {
	if err := ds.DB.Save(hold).Error; err != nil {
		return dbError(err, "update legal hold", hold.ID)
	}
	return nil
}

// ActiveHoldForDocument returns the ACTIVE hold for a document, or nil
// when none exists. Expiry is not evaluated here; that is the registry's
// business.
func (ds *DataStore) ActiveHoldForDocument(documentID string) (*LegalHold, error) {
	var hold LegalHold
	err := ds.DB.First(&hold, "document_id = ? AND status = ?", documentID, HoldActive).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "find active hold", documentID)
	}
	return &hold, nil
}

// ListHoldsForDocument returns every hold ever placed on a document.
func (ds *DataStore) ListHoldsForDocument(documentID string) ([]LegalHold, error) {
	var holds []LegalHold
	if err := ds.DB.Where("document_id = ?", documentID).Order("created_at asc").Find(&holds).Error; err != nil {
		return nil, dbError(err, "list holds", documentID)
	}
	return holds, nil
}

// CreateArchiveRecord inserts an archive row.
func (ds *DataStore) CreateArchiveRecord(rec *ArchiveRecord) error {
	if err := ds.DB.Create(rec).Error; err != nil {
		return dbError(err, "create archive record", rec.ID)
	}
	return nil
}

// GetArchiveRecord fetches an archive record by id.
func (ds *DataStore) GetArchiveRecord(id string) (*ArchiveRecord, error) {
	var rec ArchiveRecord
	if err := ds.DB.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("archive record %s not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("archive_id", id).
				Build()
		}
		return nil, dbError(err, "get archive record", id)
	}
	return &rec, nil
}

// UpdateArchiveRecord persists all fields of an existing archive record.
func (ds *DataStore) UpdateArchiveRecord(rec *ArchiveRecord) error {
	if err := ds.DB.Save(rec).Error; err != nil {
		return dbError(err, "update archive record", rec.ID)
	}
	return nil
}

// DeleteArchiveRecord removes an archive row; used only to roll back a
// failed archive operation so no orphan record survives.
func (ds *DataStore) DeleteArchiveRecord(id string) error {
	if err := ds.DB.Delete(&ArchiveRecord{}, "id = ?", id).Error; err != nil {
		return dbError(err, "delete archive record", id)
	}
	return nil
}

// SaveAuditEvent appends one audit trail entry.
func (ds *DataStore) SaveAuditEvent(event *AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := ds.DB.Create(event).Error; err != nil {
		return dbError(err, "save audit event", event.EntityID)
	}
	return nil
}

// dbError wraps a raw gorm error with component and operation context.
func dbError(err error, operation, entityID string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("entity_id", entityID).
		Build()
}
