// model.go: persistent entities of the document engine
package datastore

import "time"

// Status is the closed set of document lifecycle states. Transitions
// between them are governed by the lifecycle package's transition table;
// nothing else may mutate a document's status.
type Status string

const (
	StatusReview        Status = "REVIEW"
	StatusOut           Status = "OUT"
	StatusQuarantine    Status = "QUARANTINE"
	StatusArchived      Status = "ARCHIVED"
	StatusPendingDelete Status = "PENDING_DELETE"
	StatusDeleted       Status = "DELETED"
	StatusRestored      Status = "RESTORED"
)

// HoldStatus is the state of a legal hold.
type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"
	HoldReleased HoldStatus = "RELEASED"
)

// ArchiveStatus is the state of an archive record.
type ArchiveStatus string

const (
	ArchiveArchived ArchiveStatus = "ARCHIVED"
	ArchiveRestored ArchiveStatus = "RESTORED"
)

// Document is an ingested delivery document and its routing state.
type Document struct {
	ID                       string `gorm:"primaryKey;type:varchar(36)"`
	ContentHash              string `gorm:"index;type:varchar(64)"`
	ContentKey               string `gorm:"type:varchar(255)"` // blob store key, empty when content is gone
	Status                   Status `gorm:"index;type:varchar(20);not null"`
	PreDeleteStatus          Status `gorm:"type:varchar(20)"` // captured at soft-delete, restored by undelete
	ClassificationConfidence float64
	ExtractionConfidence     float64
	MatchedJobID             string `gorm:"index;type:varchar(36)"`
	MatchedJobRef            string `gorm:"type:varchar(64)"`
	MatchedVehiclePlate      string `gorm:"type:varchar(16)"`
	Supplier                 string `gorm:"index;type:varchar(128)"`
	Metadata                 string `gorm:"type:text"` // free-form JSON
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// JobRecord is read-only logistics reference data supplied externally.
type JobRecord struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	JobRef       string `gorm:"index;type:varchar(64)"`
	VehiclePlate string `gorm:"index;type:varchar(16)"`
	Supplier     string `gorm:"index;type:varchar(128)"`
	JobDate      string `gorm:"index;type:varchar(10)"` // YYYY-MM-DD
	CreatedAt    time.Time
}

// LegalHold blocks archival and deletion of a document while ACTIVE.
// A hold past its ExpiresAt stays stored as ACTIVE; protection checks
// treat it as expired without flipping the row.
type LegalHold struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)"`
	DocumentID    string     `gorm:"index;type:varchar(36);not null"`
	Status        HoldStatus `gorm:"index;type:varchar(10);not null"`
	Reason        string     `gorm:"type:text"`
	CreatedBy     string     `gorm:"type:varchar(128)"`
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	ReleasedBy    string `gorm:"type:varchar(128)"`
	ReleasedAt    *time.Time
	ReleaseReason string `gorm:"type:text"`
}

// ArchiveRecord tracks a bundled document and its restore provenance.
type ArchiveRecord struct {
	ID                 string        `gorm:"primaryKey;type:varchar(36)"`
	OriginalDocumentID string        `gorm:"index;type:varchar(36);not null"`
	ArchiveLocation    string        `gorm:"type:varchar(255)"`
	Checksum           string        `gorm:"type:varchar(64)"` // sha256 over the manifest
	Status             ArchiveStatus `gorm:"index;type:varchar(10);not null"`
	RestoreLocation    string        `gorm:"type:varchar(255)"`
	RestoredDocumentID string        `gorm:"type:varchar(36)"`
	RestoredBy         string        `gorm:"type:varchar(128)"`
	RestoredAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AuditEvent is one append-only entry in the compliance trail.
type AuditEvent struct {
	ID        uint      `gorm:"primaryKey"`
	Action    string    `gorm:"index;type:varchar(64);not null"`
	EntityID  string    `gorm:"index;type:varchar(36)"`
	Actor     string    `gorm:"type:varchar(128)"`
	Details   string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index"`
}
