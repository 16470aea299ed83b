// Package routing implements the confidence-weighted auto-send decision
// table. Rules are evaluated in strict order and the first one that applies
// wins; this is a decision table, not a weighted score comparison.
package routing

import (
	"log/slog"
	"time"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/logging"
	"github.com/mkarling/podkeeper/internal/matcher"
)

// Decision is the routing outcome for a document.
type Decision string

const (
	DecisionAutoSend     Decision = "AUTO_SEND"
	DecisionManualReview Decision = "MANUAL_REVIEW"
	DecisionForceSend    Decision = "FORCE_SEND"
	DecisionReject       Decision = "REJECT"
)

// ReasonCode explains why a decision was taken.
type ReasonCode string

const (
	ReasonDisabled          ReasonCode = "DISABLED"
	ReasonNoMatch           ReasonCode = "NO_MATCH"
	ReasonLowClassification ReasonCode = "LOW_CLASSIFICATION"
	ReasonHighConfidence    ReasonCode = "HIGH_CONFIDENCE"
	ReasonBelowThreshold    ReasonCode = "BELOW_THRESHOLD"
	ReasonManualOverride    ReasonCode = "MANUAL_OVERRIDE"
	ReasonManualReject      ReasonCode = "MANUAL_REJECT"
)

// NextAction is the downstream action a decision maps to.
type NextAction string

const (
	ActionReadyForExport NextAction = "READY_FOR_EXPORT"
	ActionReview         NextAction = "REVIEW"
	ActionRejected       NextAction = "REJECTED"
)

// RoutingDecision is the typed outcome handed to the lifecycle layer.
type RoutingDecision struct {
	Decision          Decision
	Reason            ReasonCode
	NextAction        NextAction
	OverallConfidence float64
	Threshold         float64
	OverrideReason    string // set for force-send and reject, kept for audit
	Timestamp         time.Time
}

// DocumentInput is the slice of document state the decision table reads.
type DocumentInput struct {
	ID                       string
	Supplier                 string
	ClassificationConfidence float64
	ExtractionConfidence     float64
}

// Engine evaluates the routing decision table.
type Engine struct {
	settings conf.RoutingSettings
	rules    *RulesCache
	logger   *slog.Logger
}

// NewEngine creates a routing engine. Weight validation happens at
// configuration load; the engine trusts the settings it is given.
func NewEngine(settings conf.RoutingSettings, rules *RulesCache) *Engine {
	return &Engine{
		settings: settings,
		rules:    rules,
		logger:   logging.ForService("routing"),
	}
}

// OverallConfidence combines the classification, extraction and match
// scores with the configured weights, clamped to [0,1].
func (e *Engine) OverallConfidence(classification, extraction, match float64) float64 {
	w := e.settings.Weights
	overall := classification*w.Classification + extraction*w.Extraction + match*w.Match
	if overall < 0 {
		return 0
	}
	if overall > 1 {
		return 1
	}
	return overall
}

// SupplierThreshold resolves the auto-send threshold for a supplier with
// the precedence: exact supplier key (case-insensitive), wildcard "*" key,
// global default.
func (e *Engine) SupplierThreshold(supplier string) float64 {
	return e.rules.Threshold(supplier)
}

// Decide runs the decision table for a document and its match result.
// Rule order is load-bearing: low classification confidence forces review
// even when the overall confidence would clear the supplier threshold.
func (e *Engine) Decide(doc DocumentInput, match matcher.Result) RoutingDecision {
	now := time.Now()

	if !e.settings.Enabled {
		return e.review(ReasonDisabled, 0, 0, now)
	}

	if match.Match == nil && e.settings.NoMatchRequiresReview {
		return e.review(ReasonNoMatch, 0, 0, now)
	}

	if doc.ClassificationConfidence < e.settings.MinClassificationConfidence {
		return e.review(ReasonLowClassification, 0, 0, now)
	}

	matchScore := 0.0
	if match.Match != nil {
		matchScore = match.Match.Score
	}
	overall := e.OverallConfidence(doc.ClassificationConfidence, doc.ExtractionConfidence, matchScore)
	threshold := e.SupplierThreshold(doc.Supplier)

	if overall >= threshold {
		e.logger.Debug("auto-send",
			"document_id", doc.ID,
			"overall", overall,
			"threshold", threshold)
		return RoutingDecision{
			Decision:          DecisionAutoSend,
			Reason:            ReasonHighConfidence,
			NextAction:        ActionReadyForExport,
			OverallConfidence: overall,
			Threshold:         threshold,
			Timestamp:         now,
		}
	}

	return e.review(ReasonBelowThreshold, overall, threshold, now)
}

// ForceSend bypasses the decision table entirely. The override reason is
// recorded for audit.
func (e *Engine) ForceSend(doc DocumentInput, overrideReason string) RoutingDecision {
	e.logger.Info("force send override",
		"document_id", doc.ID,
		"reason", overrideReason)
	return RoutingDecision{
		Decision:       DecisionForceSend,
		Reason:         ReasonManualOverride,
		NextAction:     ActionReadyForExport,
		OverrideReason: overrideReason,
		Timestamp:      time.Now(),
	}
}

// Reject bypasses the decision table entirely and routes the document to
// the rejected path.
func (e *Engine) Reject(doc DocumentInput, reason string) RoutingDecision {
	e.logger.Info("manual reject",
		"document_id", doc.ID,
		"reason", reason)
	return RoutingDecision{
		Decision:       DecisionReject,
		Reason:         ReasonManualReject,
		NextAction:     ActionRejected,
		OverrideReason: reason,
		Timestamp:      time.Now(),
	}
}

func (e *Engine) review(reason ReasonCode, overall, threshold float64, ts time.Time) RoutingDecision {
	return RoutingDecision{
		Decision:          DecisionManualReview,
		Reason:            reason,
		NextAction:        ActionReview,
		OverallConfidence: overall,
		Threshold:         threshold,
		Timestamp:         ts,
	}
}
