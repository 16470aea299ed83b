// Package lifecycle is the authoritative status model for a document.
// Every status mutation flows through the transition table here; illegal
// transitions are construction-time errors, not runtime string typos.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
	"github.com/mkarling/podkeeper/internal/logging"
	"github.com/mkarling/podkeeper/internal/routing"
)

// transitions is the closed legality table. A destination absent from a
// source's set is an illegal transition.
var transitions = map[datastore.Status]map[datastore.Status]bool{
	datastore.StatusReview: {
		datastore.StatusOut:           true,
		datastore.StatusQuarantine:    true,
		datastore.StatusArchived:      true,
		datastore.StatusPendingDelete: true,
	},
	datastore.StatusOut: {
		datastore.StatusArchived:      true,
		datastore.StatusPendingDelete: true,
	},
	datastore.StatusQuarantine: {
		datastore.StatusArchived:      true,
		datastore.StatusPendingDelete: true,
	},
	datastore.StatusRestored: {
		datastore.StatusArchived:      true,
		datastore.StatusPendingDelete: true,
	},
	datastore.StatusArchived: {
		datastore.StatusPendingDelete: true,
	},
	datastore.StatusPendingDelete: {
		datastore.StatusDeleted: true,
		// undelete targets are validated against PreDeleteStatus in Undelete
	},
	datastore.StatusDeleted: {},
}

// guardedDestinations are the destructive destinations that must consult
// the legal hold registry before any mutation.
var guardedDestinations = map[datastore.Status]bool{
	datastore.StatusArchived:      true,
	datastore.StatusPendingDelete: true,
	datastore.StatusDeleted:       true,
}

// HoldGuard is the single protection predicate destructive transitions
// consult. Satisfied by legalhold.Registry.
type HoldGuard interface {
	IsProtected(documentID string) (bool, error)
}

// Machine drives document status transitions over the datastore.
type Machine struct {
	store  datastore.Interface
	guard  HoldGuard
	sink   audit.Sink
	logger *slog.Logger
}

// NewMachine creates a lifecycle state machine.
func NewMachine(store datastore.Interface, guard HoldGuard, sink audit.Sink) *Machine {
	return &Machine{
		store:  store,
		guard:  guard,
		sink:   sink,
		logger: logging.ForService("lifecycle"),
	}
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to datastore.Status) bool {
	return transitions[from][to]
}

// Ingest creates a new document in the initial REVIEW status.
func (m *Machine) Ingest(ctx context.Context, doc *datastore.Document, actor string) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Status = datastore.StatusReview
	doc.CreatedAt = time.Now()
	if err := m.store.SaveDocument(doc); err != nil {
		return err
	}
	m.sink.Record(ctx, "document.ingested", doc.ID, actor, map[string]any{
		"content_hash": doc.ContentHash,
		"supplier":     doc.Supplier,
	})
	return nil
}

// ApplyRouting moves a REVIEW document according to a routing decision:
// READY_FOR_EXPORT sends it OUT, REJECTED quarantines it, REVIEW leaves
// it where it is.
func (m *Machine) ApplyRouting(ctx context.Context, documentID string, decision routing.RoutingDecision, actor string) error {
	details := map[string]any{
		"decision": string(decision.Decision),
		"reason":   string(decision.Reason),
	}
	if decision.OverrideReason != "" {
		details["override_reason"] = decision.OverrideReason
	}

	switch decision.NextAction {
	case routing.ActionReadyForExport:
		return m.Transition(ctx, documentID, datastore.StatusOut, actor, details)
	case routing.ActionRejected:
		return m.Transition(ctx, documentID, datastore.StatusQuarantine, actor, details)
	case routing.ActionReview:
		m.sink.Record(ctx, "document.held_for_review", documentID, actor, details)
		return nil
	default:
		return errors.Newf("unknown next action %q", decision.NextAction).
			Component("lifecycle").
			Category(errors.CategoryValidation).
			DocumentContext(documentID, "apply routing").
			Build()
	}
}

// Quarantine moves a document to QUARANTINE; used when the classifier
// says non-document or a reviewer rejects it.
func (m *Machine) Quarantine(ctx context.Context, documentID, actor, reason string) error {
	return m.Transition(ctx, documentID, datastore.StatusQuarantine, actor, map[string]any{"reason": reason})
}

// Transition is the guarded, serialized status mutation. Destructive
// destinations fail with a protected error when an active legal hold
// exists, and the document is left untouched.
func (m *Machine) Transition(ctx context.Context, documentID string, to datastore.Status, actor string, details map[string]any) error {
	unlock := LockDocument(documentID)
	defer unlock()
	return m.transitionLocked(ctx, documentID, to, actor, details)
}

func (m *Machine) transitionLocked(ctx context.Context, documentID string, to datastore.Status, actor string, details map[string]any) error {
	doc, err := m.store.GetDocument(documentID)
	if err != nil {
		return err
	}

	if !CanTransition(doc.Status, to) {
		return errors.Newf("illegal transition %s -> %s for document %s", doc.Status, to, documentID).
			Component("lifecycle").
			Category(errors.CategoryState).
			DocumentContext(documentID, "transition").
			Context("from", string(doc.Status)).
			Context("to", string(to)).
			Build()
	}

	if guardedDestinations[to] {
		if err := m.checkUnprotected(documentID, doc.Status, to); err != nil {
			return err
		}
	}

	preDelete := datastore.Status("")
	if to == datastore.StatusPendingDelete {
		// Capture the status to return to on undelete.
		preDelete = doc.Status
	}

	if err := m.store.CompareAndSwapStatus(documentID, doc.Status, to, preDelete); err != nil {
		return err
	}

	m.logger.Info("document transitioned",
		"document_id", documentID,
		"from", doc.Status,
		"to", to)
	m.sink.Record(ctx, "document.status_changed", documentID, actor, mergeDetails(details, map[string]any{
		"from": string(doc.Status),
		"to":   string(to),
	}))
	return nil
}

// SoftDelete moves a document to PENDING_DELETE, remembering the status
// it came from so undelete can return it there.
func (m *Machine) SoftDelete(ctx context.Context, documentID, actor string) error {
	return m.Transition(ctx, documentID, datastore.StatusPendingDelete, actor, nil)
}

// HardDelete moves a PENDING_DELETE document to the terminal DELETED
// status. The document row survives as a tombstone; content disposal is
// the archive manager's concern.
func (m *Machine) HardDelete(ctx context.Context, documentID, actor string) error {
	return m.Transition(ctx, documentID, datastore.StatusDeleted, actor, nil)
}

// Undelete returns a PENDING_DELETE document to the status captured when
// it was soft-deleted, not to a fixed default.
func (m *Machine) Undelete(ctx context.Context, documentID, actor string) error {
	unlock := LockDocument(documentID)
	defer unlock()

	doc, err := m.store.GetDocument(documentID)
	if err != nil {
		return err
	}
	if doc.Status != datastore.StatusPendingDelete {
		return errors.Newf("document %s is %s, only PENDING_DELETE documents can be undeleted", documentID, doc.Status).
			Component("lifecycle").
			Category(errors.CategoryState).
			DocumentContext(documentID, "undelete").
			Build()
	}
	target := doc.PreDeleteStatus
	if target == "" {
		target = datastore.StatusReview
	}

	if err := m.store.CompareAndSwapStatus(documentID, doc.Status, target, ""); err != nil {
		return err
	}

	m.sink.Record(ctx, "document.undeleted", documentID, actor, map[string]any{
		"restored_status": string(target),
	})
	return nil
}

// MintRestored creates a brand-new document in status RESTORED referencing
// the archive it came from. Restoring is not a resurrection: the original
// archived document id is never reactivated.
func (m *Machine) MintRestored(ctx context.Context, original *datastore.Document, archiveID, actor string) (*datastore.Document, error) {
	restored := &datastore.Document{
		ID:                       uuid.NewString(),
		ContentHash:              original.ContentHash,
		ContentKey:               original.ContentKey,
		Status:                   datastore.StatusRestored,
		ClassificationConfidence: original.ClassificationConfidence,
		ExtractionConfidence:     original.ExtractionConfidence,
		MatchedJobID:             original.MatchedJobID,
		MatchedJobRef:            original.MatchedJobRef,
		MatchedVehiclePlate:      original.MatchedVehiclePlate,
		Supplier:                 original.Supplier,
		Metadata:                 original.Metadata,
		CreatedAt:                time.Now(),
	}
	if err := m.store.SaveDocument(restored); err != nil {
		return nil, err
	}
	m.sink.Record(ctx, "document.restored", restored.ID, actor, map[string]any{
		"archive_id":  archiveID,
		"original_id": original.ID,
	})
	return restored, nil
}

func (m *Machine) checkUnprotected(documentID string, from, to datastore.Status) error {
	protected, err := m.guard.IsProtected(documentID)
	if err != nil {
		return err
	}
	if protected {
		return errors.Newf("document %s is protected by an active legal hold", documentID).
			Component("lifecycle").
			Category(errors.CategoryProtected).
			DocumentContext(documentID, "transition").
			Context("from", string(from)).
			Context("to", string(to)).
			Build()
	}
	return nil
}

func mergeDetails(base, extra map[string]any) map[string]any {
	if base == nil {
		return extra
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}
