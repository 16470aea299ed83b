package retention

import (
	"context"
	"time"

	"github.com/mkarling/podkeeper/internal/datastore"
)

// sweepStatuses are the statuses a cleanup run considers. DELETED is
// terminal and RESTORED documents re-enter retention from their new
// created-at, so both age like any other live status.
var sweepStatuses = []datastore.Status{
	datastore.StatusReview,
	datastore.StatusOut,
	datastore.StatusQuarantine,
	datastore.StatusArchived,
	datastore.StatusPendingDelete,
	datastore.StatusRestored,
}

// CleanupItem records the outcome for one document in a cleanup run.
type CleanupItem struct {
	DocumentID string `json:"document_id"`
	Action     Action `json:"action"`
	PolicyID   string `json:"policy_id"`
}

// CleanupFailure records a per-item failure without aborting the run.
type CleanupFailure struct {
	DocumentID string `json:"document_id"`
	Action     Action `json:"action"`
	Error      string `json:"error"`
}

// CleanupResult summarizes a cleanup run.
type CleanupResult struct {
	DryRun    bool             `json:"dry_run"`
	Evaluated int              `json:"evaluated"`
	Skipped   int              `json:"skipped"`
	Applied   []CleanupItem    `json:"applied"`
	Failures  []CleanupFailure `json:"failures"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// RunCleanup batch-evaluates retention over eligible documents and applies
// (or, when dryRun is set, only reports) the due transition per document.
// The limit caps the whole run, not each policy. A single item's failure
// never aborts the batch: failures are collected per item and returned
// alongside the successes.
func (e *Evaluator) RunCleanup(ctx context.Context, dryRun bool, limit int) (*CleanupResult, error) {
	started := e.now()
	result := &CleanupResult{DryRun: dryRun, StartedAt: started}
	if limit <= 0 {
		limit = e.settings.CleanupLimit
	}

	// The limit is a run-wide budget, not per policy.
	remaining := limit
	for i := range e.settings.Policies {
		if remaining <= 0 {
			break
		}
		policy := &e.settings.Policies[i]
		cutoff := started.AddDate(0, 0, -policy.RetentionDays)
		docs, err := e.store.ListDocumentsCreatedBefore(cutoff, sweepStatuses, remaining)
		if err != nil {
			return nil, err
		}
		remaining -= len(docs)

		for di := range docs {
			if ctx.Err() != nil {
				e.logger.Info("cleanup interrupted", "evaluated", result.Evaluated)
				result.Duration = e.now().Sub(started)
				return result, ctx.Err()
			}
			doc := &docs[di]
			result.Evaluated++

			protected, err := e.guard.IsProtected(doc.ID)
			if err != nil {
				result.Failures = append(result.Failures, CleanupFailure{
					DocumentID: doc.ID,
					Action:     ActionSkip,
					Error:      err.Error(),
				})
				continue
			}
			if protected {
				e.logger.Debug("skipping protected document", "document_id", doc.ID)
				result.Skipped++
				continue
			}

			exp := e.Evaluate(doc, policy)
			action := e.plan(doc, exp, policy)
			if action == ActionSkip {
				result.Skipped++
				continue
			}

			item := CleanupItem{DocumentID: doc.ID, Action: action, PolicyID: policy.PolicyID}
			if dryRun {
				result.Applied = append(result.Applied, item)
				continue
			}
			if err := e.perform(ctx, action, doc.ID, policy.PolicyID, "retention-sweep"); err != nil {
				e.logger.Warn("cleanup action failed",
					"document_id", doc.ID,
					"action", string(action),
					"error", err)
				result.Failures = append(result.Failures, CleanupFailure{
					DocumentID: doc.ID,
					Action:     action,
					Error:      err.Error(),
				})
				continue
			}
			result.Applied = append(result.Applied, item)
		}
	}

	result.Duration = e.now().Sub(started)
	e.logger.Info("cleanup run finished",
		"dry_run", dryRun,
		"evaluated", result.Evaluated,
		"applied", len(result.Applied),
		"skipped", result.Skipped,
		"failures", len(result.Failures))
	return result, nil
}
