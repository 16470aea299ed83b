// manifest.go - archive bundle manifest
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkarling/podkeeper/internal/datastore"
)

// manifestVersion is bumped when the manifest layout changes.
const manifestVersion = 1

// Manifest describes the archived document inside a bundle. The bundle
// checksum is computed over the serialized manifest, so any tampering with
// the recorded metadata fails verification at restore time.
type Manifest struct {
	Version                  int       `yaml:"version"`
	ArchiveID                string    `yaml:"archive_id"`
	DocumentID               string    `yaml:"document_id"`
	ContentHash              string    `yaml:"content_hash"`
	ContentKey               string    `yaml:"content_key,omitempty"`
	HasContent               bool      `yaml:"has_content"`
	StatusAtArchive          string    `yaml:"status_at_archive"`
	Supplier                 string    `yaml:"supplier,omitempty"`
	MatchedJobID             string    `yaml:"matched_job_id,omitempty"`
	MatchedJobRef            string    `yaml:"matched_job_ref,omitempty"`
	MatchedVehiclePlate      string    `yaml:"matched_vehicle_plate,omitempty"`
	ClassificationConfidence float64   `yaml:"classification_confidence"`
	ExtractionConfidence     float64   `yaml:"extraction_confidence"`
	Metadata                 string    `yaml:"metadata,omitempty"`
	DocumentCreatedAt        time.Time `yaml:"document_created_at"`
	ArchivedAt               time.Time `yaml:"archived_at"`
	ArchivedBy               string    `yaml:"archived_by"`
}

// newManifest builds a manifest snapshot of the document being archived.
func newManifest(archiveID string, doc *datastore.Document, hasContent bool, actor string, now time.Time) *Manifest {
	return &Manifest{
		Version:                  manifestVersion,
		ArchiveID:                archiveID,
		DocumentID:               doc.ID,
		ContentHash:              doc.ContentHash,
		ContentKey:               doc.ContentKey,
		HasContent:               hasContent,
		StatusAtArchive:          string(doc.Status),
		Supplier:                 doc.Supplier,
		MatchedJobID:             doc.MatchedJobID,
		MatchedJobRef:            doc.MatchedJobRef,
		MatchedVehiclePlate:      doc.MatchedVehiclePlate,
		ClassificationConfidence: doc.ClassificationConfidence,
		ExtractionConfidence:     doc.ExtractionConfidence,
		Metadata:                 doc.Metadata,
		DocumentCreatedAt:        doc.CreatedAt,
		ArchivedAt:               now,
		ArchivedBy:               actor,
	}
}

// encode serializes the manifest and returns the bytes with their sha256.
func (m *Manifest) encode() ([]byte, string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// decodeManifest parses manifest bytes and returns the manifest with the
// checksum of the raw bytes as stored in the bundle.
func decodeManifest(data []byte) (*Manifest, string, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)
	return &m, hex.EncodeToString(sum[:]), nil
}
