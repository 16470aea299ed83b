// Package retention computes expiry and grace windows per policy and drives
// the lifecycle transitions that age documents out of the system.
//
// DELETED is only reachable from PENDING_DELETE, so a past-grace document
// still in a live status is soft-deleted first and hard-deleted on the
// next sweep: it takes two sweeps to disappear.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
	"github.com/mkarling/podkeeper/internal/lifecycle"
	"github.com/mkarling/podkeeper/internal/logging"
)

// Action is the retention outcome chosen for a document.
type Action string

const (
	ActionArchive    Action = "archive"
	ActionSoftDelete Action = "soft_delete"
	ActionHardDelete Action = "hard_delete"
	ActionSkip       Action = "skip"
)

// Expiry is the window math for one document under one policy.
type Expiry struct {
	ExpiryDate    time.Time
	GraceExpiry   time.Time
	IsExpired     bool
	InGracePeriod bool
	// ArchiveEligible and DeleteEligible are mutually exclusive: when the
	// policy archives before deleting, direct delete-eligibility is
	// suppressed and deletion is reached through the ARCHIVED path in a
	// later cleanup pass.
	ArchiveEligible bool
	DeleteEligible  bool
}

// Archiver is the slice of the archive manager the evaluator needs.
type Archiver interface {
	Archive(ctx context.Context, documentID, actor string) (*datastore.ArchiveRecord, error)
}

// Evaluator applies retention policies to documents.
type Evaluator struct {
	settings conf.RetentionSettings
	store    datastore.Interface
	machine  *lifecycle.Machine
	archiver Archiver
	guard    lifecycle.HoldGuard
	sink     audit.Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewEvaluator creates a retention evaluator.
func NewEvaluator(settings conf.RetentionSettings, store datastore.Interface, machine *lifecycle.Machine, archiver Archiver, guard lifecycle.HoldGuard, sink audit.Sink) *Evaluator {
	return &Evaluator{
		settings: settings,
		store:    store,
		machine:  machine,
		archiver: archiver,
		guard:    guard,
		sink:     sink,
		logger:   logging.ForService("retention"),
		now:      time.Now,
	}
}

// Evaluate computes the expiry windows for a document under a policy.
func (e *Evaluator) Evaluate(doc *datastore.Document, policy *conf.RetentionPolicy) Expiry {
	now := e.now()
	expiryDate := doc.CreatedAt.AddDate(0, 0, policy.RetentionDays)
	graceExpiry := expiryDate.AddDate(0, 0, policy.GraceDays)

	exp := Expiry{
		ExpiryDate:  expiryDate,
		GraceExpiry: graceExpiry,
	}
	exp.IsExpired = !now.Before(expiryDate)
	exp.InGracePeriod = exp.IsExpired && now.Before(graceExpiry)
	exp.ArchiveEligible = exp.IsExpired && policy.ArchiveBeforeDelete
	exp.DeleteEligible = exp.InGracePeriod && !policy.ArchiveBeforeDelete
	return exp
}

// policyFor finds the first policy covering the entity type.
func (e *Evaluator) policyFor(entityType string) *conf.RetentionPolicy {
	for i := range e.settings.Policies {
		for _, t := range e.settings.Policies[i].AppliesTo {
			if t == entityType {
				return &e.settings.Policies[i]
			}
		}
	}
	return nil
}

// plan picks the single transition the document is due for. A document
// already in PENDING_DELETE waits out its grace window before the hard
// delete; one already ARCHIVED moves on to PENDING_DELETE only once grace
// has passed.
func (e *Evaluator) plan(doc *datastore.Document, exp Expiry, policy *conf.RetentionPolicy) Action {
	if !exp.IsExpired {
		return ActionSkip
	}
	now := e.now()

	switch doc.Status {
	case datastore.StatusPendingDelete:
		if !now.Before(exp.GraceExpiry) {
			return ActionHardDelete
		}
		return ActionSkip
	case datastore.StatusArchived:
		if !now.Before(exp.GraceExpiry) {
			return ActionSoftDelete
		}
		return ActionSkip
	}

	if exp.ArchiveEligible {
		return ActionArchive
	}
	if exp.InGracePeriod {
		return ActionSoftDelete
	}
	// Past grace without ever being soft-deleted: take the only legal
	// destructive step now, the hard delete completes on the next sweep.
	return ActionSoftDelete
}

// ApplyRetention recomputes expiry for a document and performs exactly one
// lifecycle transition. It errors if the document is not yet expired or is
// protected by an active legal hold.
func (e *Evaluator) ApplyRetention(ctx context.Context, documentID, actor string) (Action, error) {
	doc, err := e.store.GetDocument(documentID)
	if err != nil {
		return ActionSkip, err
	}

	policy := e.policyFor("document")
	if policy == nil {
		return ActionSkip, errors.Newf("no retention policy applies to document %s", documentID).
			Component("retention").
			Category(errors.CategoryConfiguration).
			DocumentContext(documentID, "apply retention").
			Build()
	}

	exp := e.Evaluate(doc, policy)
	if !exp.IsExpired {
		return ActionSkip, errors.Newf("document %s does not expire until %s", documentID, exp.ExpiryDate.Format(time.RFC3339)).
			Component("retention").
			Category(errors.CategoryValidation).
			DocumentContext(documentID, "apply retention").
			Build()
	}

	protected, err := e.guard.IsProtected(documentID)
	if err != nil {
		return ActionSkip, err
	}
	if protected {
		return ActionSkip, errors.Newf("document %s is protected by an active legal hold", documentID).
			Component("retention").
			Category(errors.CategoryProtected).
			DocumentContext(documentID, "apply retention").
			Build()
	}

	action := e.plan(doc, exp, policy)
	if action == ActionSkip {
		return ActionSkip, nil
	}
	return action, e.perform(ctx, action, documentID, policy.PolicyID, actor)
}

func (e *Evaluator) perform(ctx context.Context, action Action, documentID, policyID, actor string) error {
	var err error
	switch action {
	case ActionArchive:
		_, err = e.archiver.Archive(ctx, documentID, actor)
	case ActionSoftDelete:
		err = e.machine.SoftDelete(ctx, documentID, actor)
	case ActionHardDelete:
		err = e.machine.HardDelete(ctx, documentID, actor)
	}
	if err != nil {
		return err
	}
	e.sink.Record(ctx, "retention.applied", documentID, actor, map[string]any{
		"action":    string(action),
		"policy_id": policyID,
	})
	return nil
}
