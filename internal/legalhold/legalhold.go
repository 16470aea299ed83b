// Package legalhold tracks legal protection state per document. Its
// IsProtected predicate is the single gate every destructive operation
// consults before mutating a document.
package legalhold

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
	"github.com/mkarling/podkeeper/internal/lifecycle"
	"github.com/mkarling/podkeeper/internal/logging"
)

// Registry manages legal holds over the datastore.
type Registry struct {
	store  datastore.Interface
	sink   audit.Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates a legal hold registry.
func NewRegistry(store datastore.Interface, sink audit.Sink) *Registry {
	return &Registry{
		store:  store,
		sink:   sink,
		logger: logging.ForService("legalhold"),
		now:    time.Now,
	}
}

// CreateHold places a new ACTIVE hold on a document. At most one ACTIVE,
// non-expired hold may exist per document; a second attempt fails with an
// already-exists error. An existing ACTIVE hold that is past its expiry no
// longer counts: it is released in place and superseded.
func (r *Registry) CreateHold(ctx context.Context, documentID, reason, createdBy string, expiresAt *time.Time) (*datastore.LegalHold, error) {
	if documentID == "" {
		return nil, errors.Newf("document id is required").
			Component("legalhold").
			Category(errors.CategoryValidation).
			Build()
	}

	// Serialize with lifecycle transitions on the same document: a hold
	// must not land between a transition's guard check and its status swap.
	unlock := lifecycle.LockDocument(documentID)
	defer unlock()

	existing, err := r.store.ActiveHoldForDocument(documentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !r.expired(existing) {
			return nil, errors.Newf("document %s already has an active legal hold %s", documentID, existing.ID).
				Component("legalhold").
				Category(errors.CategoryAlreadyExists).
				DocumentContext(documentID, "create hold").
				Context("existing_hold_id", existing.ID).
				Build()
		}
		// Stored ACTIVE but past expiry: supersede it.
		if err := r.release(ctx, existing, createdBy, "superseded by new hold after expiry"); err != nil {
			return nil, err
		}
	}

	hold := &datastore.LegalHold{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Status:     datastore.HoldActive,
		Reason:     reason,
		CreatedBy:  createdBy,
		CreatedAt:  r.now(),
		ExpiresAt:  expiresAt,
	}
	if err := r.store.CreateLegalHold(hold); err != nil {
		return nil, err
	}

	r.logger.Info("legal hold created",
		"hold_id", hold.ID,
		"document_id", documentID,
		"created_by", createdBy)
	r.sink.Record(ctx, "legal_hold.created", documentID, createdBy, map[string]any{
		"hold_id": hold.ID,
		"reason":  reason,
	})
	return hold, nil
}

// ReleaseHold releases an ACTIVE hold, recording who released it and why.
// Releasing a hold in any other state is a state error.
func (r *Registry) ReleaseHold(ctx context.Context, holdID, releasedBy, reason string) (*datastore.LegalHold, error) {
	hold, err := r.store.GetLegalHold(holdID)
	if err != nil {
		return nil, err
	}

	// Lock the document, then re-read the hold: its state may have moved
	// while we were waiting.
	unlock := lifecycle.LockDocument(hold.DocumentID)
	defer unlock()
	hold, err = r.store.GetLegalHold(holdID)
	if err != nil {
		return nil, err
	}

	if hold.Status != datastore.HoldActive {
		return nil, errors.Newf("legal hold %s is %s, only ACTIVE holds can be released", holdID, hold.Status).
			Component("legalhold").
			Category(errors.CategoryState).
			Context("hold_id", holdID).
			Context("status", string(hold.Status)).
			Build()
	}
	if err := r.release(ctx, hold, releasedBy, reason); err != nil {
		return nil, err
	}
	return hold, nil
}

// IsProtected reports whether a document currently has an ACTIVE hold with
// no expiry or an expiry in the future. Expiry is passive: a hold past its
// ExpiresAt stays stored as ACTIVE — there is no background sweep — but
// this predicate treats it as no longer protecting.
func (r *Registry) IsProtected(documentID string) (bool, error) {
	hold, err := r.store.ActiveHoldForDocument(documentID)
	if err != nil {
		return false, err
	}
	if hold == nil {
		return false, nil
	}
	return !r.expired(hold), nil
}

// ListHolds returns every hold ever placed on a document, oldest first.
func (r *Registry) ListHolds(documentID string) ([]datastore.LegalHold, error) {
	return r.store.ListHoldsForDocument(documentID)
}

func (r *Registry) release(ctx context.Context, hold *datastore.LegalHold, releasedBy, reason string) error {
	released := r.now()
	hold.Status = datastore.HoldReleased
	hold.ReleasedBy = releasedBy
	hold.ReleasedAt = &released
	hold.ReleaseReason = reason
	if err := r.store.UpdateLegalHold(hold); err != nil {
		return err
	}

	r.logger.Info("legal hold released",
		"hold_id", hold.ID,
		"document_id", hold.DocumentID,
		"released_by", releasedBy)
	r.sink.Record(ctx, "legal_hold.released", hold.DocumentID, releasedBy, map[string]any{
		"hold_id": hold.ID,
		"reason":  reason,
	})
	return nil
}

func (r *Registry) expired(hold *datastore.LegalHold) bool {
	return hold.ExpiresAt != nil && !hold.ExpiresAt.After(r.now())
}
