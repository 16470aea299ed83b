// Package archive bundles and unbundles document data on top of the
// lifecycle state machine. A bundle is a tar.gz of the original content
// plus a metadata manifest, with a checksum over the manifest.
package archive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/blob"
	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
	"github.com/mkarling/podkeeper/internal/lifecycle"
	"github.com/mkarling/podkeeper/internal/logging"
)

// Manager performs archive and restore operations.
type Manager struct {
	settings conf.ArchiveSettings
	store    datastore.Interface
	machine  *lifecycle.Machine
	guard    lifecycle.HoldGuard
	blobs    blob.Store
	sink     audit.Sink
	logger   *slog.Logger
}

// NewManager creates an archive manager.
func NewManager(settings conf.ArchiveSettings, store datastore.Interface, machine *lifecycle.Machine, guard lifecycle.HoldGuard, blobs blob.Store, sink audit.Sink) *Manager {
	return &Manager{
		settings: settings,
		store:    store,
		machine:  machine,
		guard:    guard,
		blobs:    blobs,
		sink:     sink,
		logger:   logging.ForService("archive"),
	}
}

// Archive bundles a document and transitions it to ARCHIVED. Preconditions:
// the document must not already be archived and must not be protected by an
// active legal hold. Any failure after partial work removes the temporary
// artifacts and leaves no orphan archive record.
func (m *Manager) Archive(ctx context.Context, documentID, actor string) (*datastore.ArchiveRecord, error) {
	doc, err := m.store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == datastore.StatusArchived {
		return nil, errors.Newf("document %s is already archived", documentID).
			Component("archive").
			Category(errors.CategoryAlreadyExists).
			DocumentContext(documentID, "archive").
			Build()
	}

	// Early protection check saves the bundling work; the lifecycle
	// transition re-checks under the document lock.
	protected, err := m.guard.IsProtected(documentID)
	if err != nil {
		return nil, err
	}
	if protected {
		return nil, errors.Newf("document %s is protected by an active legal hold", documentID).
			Component("archive").
			Category(errors.CategoryProtected).
			DocumentContext(documentID, "archive").
			Build()
	}

	content, err := m.fetchContent(ctx, doc)
	if err != nil {
		m.auditFailure(ctx, "archive.content_fetch_failed", documentID, actor, err)
		return nil, err
	}

	archiveID := uuid.NewString()
	now := time.Now()
	manifest := newManifest(archiveID, doc, len(content) > 0, actor, now)
	manifestData, checksum, err := manifest.encode()
	if err != nil {
		return nil, errors.New(err).
			Component("archive").
			Category(errors.CategoryArchive).
			DocumentContext(documentID, "encode manifest").
			Build()
	}

	bundlePath := filepath.Join(m.settings.Path, archiveID+".tar.gz")
	if err := writeBundle(bundlePath, manifestData, content); err != nil {
		wrapped := errors.New(err).
			Component("archive").
			Category(errors.CategoryExternalIO).
			DocumentContext(documentID, "write bundle").
			Build()
		m.auditFailure(ctx, "archive.bundle_write_failed", documentID, actor, wrapped)
		return nil, wrapped
	}

	rec := &datastore.ArchiveRecord{
		ID:                 archiveID,
		OriginalDocumentID: documentID,
		ArchiveLocation:    bundlePath,
		Checksum:           checksum,
		Status:             datastore.ArchiveArchived,
		CreatedAt:          now,
	}
	if err := m.store.CreateArchiveRecord(rec); err != nil {
		os.Remove(bundlePath)
		return nil, err
	}

	if err := m.machine.Transition(ctx, documentID, datastore.StatusArchived, actor, map[string]any{
		"archive_id": archiveID,
	}); err != nil {
		// Roll back: no orphan record, no orphan bundle.
		if delErr := m.store.DeleteArchiveRecord(archiveID); delErr != nil {
			m.logger.Error("failed to roll back archive record",
				"archive_id", archiveID,
				"error", delErr)
		}
		os.Remove(bundlePath)
		return nil, err
	}

	m.logger.Info("document archived",
		"document_id", documentID,
		"archive_id", archiveID,
		"bundle", bundlePath)
	m.sink.Record(ctx, "archive.created", documentID, actor, map[string]any{
		"archive_id": archiveID,
		"checksum":   checksum,
	})
	return rec, nil
}

// Restore unpacks a bundle and mints a new document in status RESTORED that
// carries the manifest metadata forward. The archive record flips to
// RESTORED with who/when/where provenance; the original document id is
// never reactivated.
func (m *Manager) Restore(ctx context.Context, archiveID, actor string) (*datastore.Document, error) {
	rec, err := m.store.GetArchiveRecord(archiveID)
	if err != nil {
		return nil, err
	}
	if rec.Status != datastore.ArchiveArchived {
		return nil, errors.Newf("archive %s is %s, only ARCHIVED bundles can be restored", archiveID, rec.Status).
			Component("archive").
			Category(errors.CategoryState).
			Context("archive_id", archiveID).
			Build()
	}

	manifestData, content, err := readBundle(rec.ArchiveLocation)
	if err != nil {
		wrapped := errors.New(err).
			Component("archive").
			Category(errors.CategoryExternalIO).
			Context("archive_id", archiveID).
			Context("operation", "read bundle").
			Build()
		m.auditFailure(ctx, "restore.bundle_read_failed", archiveID, actor, wrapped)
		return nil, wrapped
	}

	manifest, checksum, err := decodeManifest(manifestData)
	if err != nil {
		return nil, errors.New(err).
			Component("archive").
			Category(errors.CategoryArchive).
			Context("archive_id", archiveID).
			Build()
	}
	if checksum != rec.Checksum {
		wrapped := errors.Newf("bundle checksum %s does not match recorded %s", checksum, rec.Checksum).
			Component("archive").
			Category(errors.CategoryConsistency).
			Context("archive_id", archiveID).
			Build()
		m.auditFailure(ctx, "restore.checksum_mismatch", archiveID, actor, wrapped)
		return nil, wrapped
	}

	restoreDir := filepath.Join(m.settings.ScratchPath, archiveID)
	if len(content) > 0 {
		if err := unpackContent(restoreDir, content); err != nil {
			wrapped := errors.New(err).
				Component("archive").
				Category(errors.CategoryExternalIO).
				Context("archive_id", archiveID).
				Context("operation", "unpack content").
				Build()
			m.auditFailure(ctx, "restore.unpack_failed", archiveID, actor, wrapped)
			return nil, wrapped
		}
	}

	original := manifest.toDocument()
	restored, err := m.machine.MintRestored(ctx, original, archiveID, actor)
	if err != nil {
		os.RemoveAll(restoreDir)
		return nil, err
	}

	restoredAt := time.Now()
	rec.Status = datastore.ArchiveRestored
	rec.RestoreLocation = restoreDir
	rec.RestoredDocumentID = restored.ID
	rec.RestoredBy = actor
	rec.RestoredAt = &restoredAt
	if err := m.store.UpdateArchiveRecord(rec); err != nil {
		return nil, err
	}

	m.logger.Info("archive restored",
		"archive_id", archiveID,
		"restored_document_id", restored.ID)
	m.sink.Record(ctx, "archive.restored", archiveID, actor, map[string]any{
		"restored_document_id": restored.ID,
		"restore_location":     restoreDir,
	})
	return restored, nil
}

// SoftDelete is a thin wrapper over the guarded lifecycle transition.
func (m *Manager) SoftDelete(ctx context.Context, documentID, actor string) error {
	return m.machine.SoftDelete(ctx, documentID, actor)
}

// Undelete is a thin wrapper over the lifecycle undelete.
func (m *Manager) Undelete(ctx context.Context, documentID, actor string) error {
	return m.machine.Undelete(ctx, documentID, actor)
}

// HardDelete performs the irreversible delete and, when configured, purges
// the backing blob.
func (m *Manager) HardDelete(ctx context.Context, documentID, actor string) error {
	doc, err := m.store.GetDocument(documentID)
	if err != nil {
		return err
	}

	if err := m.machine.HardDelete(ctx, documentID, actor); err != nil {
		return err
	}

	if m.settings.PurgeBlobOnHardDelete && doc.ContentKey != "" && m.blobs != nil {
		if err := m.blobs.Delete(ctx, doc.ContentKey); err != nil {
			m.auditFailure(ctx, "delete.blob_purge_failed", documentID, actor, err)
			return err
		}
		m.sink.Record(ctx, "delete.blob_purged", documentID, actor, map[string]any{
			"content_key": doc.ContentKey,
		})
	}
	return nil
}

// Verify re-reads a bundle and checks its manifest checksum against the
// archive record without restoring anything.
func (m *Manager) Verify(ctx context.Context, archiveID string) error {
	rec, err := m.store.GetArchiveRecord(archiveID)
	if err != nil {
		return err
	}
	manifestData, _, err := readBundle(rec.ArchiveLocation)
	if err != nil {
		wrapped := errors.New(err).
			Component("archive").
			Category(errors.CategoryExternalIO).
			Context("archive_id", archiveID).
			Build()
		m.auditFailure(ctx, "verify.bundle_read_failed", archiveID, "system", wrapped)
		return wrapped
	}
	_, checksum, err := decodeManifest(manifestData)
	if err != nil {
		return err
	}
	if checksum != rec.Checksum {
		wrapped := errors.Newf("bundle checksum %s does not match recorded %s", checksum, rec.Checksum).
			Component("archive").
			Category(errors.CategoryConsistency).
			Context("archive_id", archiveID).
			Build()
		m.auditFailure(ctx, "verify.checksum_mismatch", archiveID, "system", wrapped)
		return wrapped
	}
	return nil
}

// fetchContent pulls the original content from the blob store. A document
// without a content key archives metadata-only; a missing blob for a
// recorded key is an external I/O condition.
func (m *Manager) fetchContent(ctx context.Context, doc *datastore.Document) ([]byte, error) {
	if doc.ContentKey == "" || m.blobs == nil {
		return nil, nil
	}
	rc, err := m.blobs.Get(ctx, doc.ContentKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (m *Manager) auditFailure(ctx context.Context, action, entityID, actor string, err error) {
	m.sink.Record(ctx, action, entityID, actor, map[string]any{
		"error": err.Error(),
	})
}

// unpackContent writes restored content into the scratch directory.
func unpackContent(dir string, content []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, contentEntry), content, 0o644)
}

// toDocument reconstructs the archived document's fields from the manifest
// for metadata carry-forward when minting the restored document.
func (man *Manifest) toDocument() *datastore.Document {
	return &datastore.Document{
		ID:                       man.DocumentID,
		ContentHash:              man.ContentHash,
		ContentKey:               man.ContentKey,
		Status:                   datastore.Status(man.StatusAtArchive),
		ClassificationConfidence: man.ClassificationConfidence,
		ExtractionConfidence:     man.ExtractionConfidence,
		MatchedJobID:             man.MatchedJobID,
		MatchedJobRef:            man.MatchedJobRef,
		MatchedVehiclePlate:      man.MatchedVehiclePlate,
		Supplier:                 man.Supplier,
		Metadata:                 man.Metadata,
		CreatedAt:                man.DocumentCreatedAt,
	}
}
