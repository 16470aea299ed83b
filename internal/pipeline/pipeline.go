// Package pipeline runs a document through intake: classify, extract,
// match, route, transition. Each stage returns a tagged result and declares
// whether its failure halts the run or degrades the stages after it, so
// the halt-or-degrade policy is explicit instead of buried in error
// handling.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/lifecycle"
	"github.com/mkarling/podkeeper/internal/logging"
	"github.com/mkarling/podkeeper/internal/matcher"
	"github.com/mkarling/podkeeper/internal/routing"
)

// Classification is the classifier's verdict on raw content.
type Classification struct {
	IsDocument bool
	Confidence float64
}

// Classifier decides whether raw bytes are a deliverable document.
type Classifier interface {
	Classify(ctx context.Context, content []byte, mimeType string) (Classification, error)
}

// Extractor pulls structured fields out of document content.
type Extractor interface {
	Extract(ctx context.Context, content []byte) (matcher.Extracted, error)
}

// JobDirectory is the read-only lookup of candidate jobs.
type JobDirectory interface {
	Lookup(ctx context.Context, jobRef, vehicleReg, date string) ([]matcher.Job, error)
}

// StageStatus tags a stage outcome.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageSkipped StageStatus = "skipped"
	StageFailed  StageStatus = "failed"
)

// Stage names, in run order.
const (
	StageIngest   = "ingest"
	StageClassify = "classify"
	StageExtract  = "extract"
	StageMatch    = "match"
	StageRoute    = "route"
)

// StageResult records one stage's outcome.
type StageResult struct {
	Stage  string      `json:"stage"`
	Status StageStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Input is the raw material for one intake run.
type Input struct {
	Content  []byte
	MimeType string
	// ContentKey names the blob the content was stored under; carried
	// onto the document so archive and purge can find it later.
	ContentKey string
	Supplier   string
	Metadata   string
}

// Outcome is the full account of one intake run.
type Outcome struct {
	DocumentID    string
	CorrelationID string
	Stages        []StageResult
	Match         *matcher.Result
	Decision      *routing.RoutingDecision
	FinalStatus   datastore.Status
}

// Pipeline wires the intake stages together.
type Pipeline struct {
	classifier Classifier
	extractor  Extractor
	jobs       JobDirectory
	matcher    *matcher.Matcher
	engine     *routing.Engine
	machine    *lifecycle.Machine
	store      datastore.Interface
	sink       audit.Sink
	logger     *slog.Logger
}

// New creates an intake pipeline.
func New(classifier Classifier, extractor Extractor, jobs JobDirectory, matchSettings conf.MatchingSettings, engine *routing.Engine, machine *lifecycle.Machine, store datastore.Interface, sink audit.Sink) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		extractor:  extractor,
		jobs:       jobs,
		matcher:    matcher.New(matchSettings),
		engine:     engine,
		machine:    machine,
		store:      store,
		sink:       sink,
		logger:     logging.ForService("pipeline"),
	}
}

// Process runs one document through intake. Stage policies:
//   - ingest failure halts, there is nothing to degrade onto;
//   - a classifier error degrades (confidence 0 routes to review), but a
//     confident non-document verdict halts into QUARANTINE;
//   - extractor and job-lookup errors degrade to a no-match result;
//   - routing and the final transition always run for documents that pass
//     classification, so every document leaves intake with a decision.
func (p *Pipeline) Process(ctx context.Context, in Input) (*Outcome, error) {
	correlationID := audit.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
		ctx = audit.WithCorrelationID(ctx, correlationID)
	}

	hash := sha256.Sum256(in.Content)
	doc := &datastore.Document{
		ContentHash: hex.EncodeToString(hash[:]),
		ContentKey:  in.ContentKey,
		Supplier:    strings.ToLower(strings.TrimSpace(in.Supplier)),
		Metadata:    in.Metadata,
	}

	out := &Outcome{CorrelationID: correlationID}
	if err := p.machine.Ingest(ctx, doc, "pipeline"); err != nil {
		out.Stages = append(out.Stages, StageResult{Stage: StageIngest, Status: StageFailed, Error: err.Error()})
		return out, err
	}
	out.DocumentID = doc.ID
	out.Stages = append(out.Stages, StageResult{Stage: StageIngest, Status: StageSuccess})

	log := p.logger.With("document_id", doc.ID, "correlation_id", correlationID)

	classification, halted := p.classify(ctx, in, doc, out, log)
	if halted {
		return p.finish(ctx, doc, out, log)
	}
	doc.ClassificationConfidence = classification.Confidence

	fields := p.extract(ctx, in, out, log)
	doc.ExtractionConfidence = fields.Confidence
	if fields.Supplier != "" {
		doc.Supplier = strings.ToLower(strings.TrimSpace(fields.Supplier))
	}

	match := p.match(ctx, fields, out, log)
	out.Match = &match
	if match.Match != nil {
		doc.MatchedJobID = match.Match.JobID
		doc.MatchedJobRef = match.Match.JobRef
		if plate := fields.VehicleReg; plate != "" {
			doc.MatchedVehiclePlate = plate
		}
	}
	if err := p.store.UpdateDocument(doc); err != nil {
		log.Error("failed to persist intake results", "error", err)
		return out, err
	}

	decision := p.engine.Decide(routing.DocumentInput{
		ID:                       doc.ID,
		Supplier:                 doc.Supplier,
		ClassificationConfidence: doc.ClassificationConfidence,
		ExtractionConfidence:     doc.ExtractionConfidence,
	}, match)
	out.Decision = &decision
	if err := p.machine.ApplyRouting(ctx, doc.ID, decision, "pipeline"); err != nil {
		out.Stages = append(out.Stages, StageResult{Stage: StageRoute, Status: StageFailed, Error: err.Error()})
		return p.finish(ctx, doc, out, log)
	}
	out.Stages = append(out.Stages, StageResult{Stage: StageRoute, Status: StageSuccess})

	return p.finish(ctx, doc, out, log)
}

// classify runs the classifier. Returns halted=true when the document went
// to QUARANTINE and the remaining stages must not run.
func (p *Pipeline) classify(ctx context.Context, in Input, doc *datastore.Document, out *Outcome, log *slog.Logger) (Classification, bool) {
	classification, err := p.classifier.Classify(ctx, in.Content, in.MimeType)
	if err != nil {
		// Degrade: an unreachable classifier must not lose the document,
		// zero confidence forces it into manual review downstream.
		log.Warn("classifier failed, degrading to zero confidence", "error", err)
		out.Stages = append(out.Stages, StageResult{Stage: StageClassify, Status: StageFailed, Error: err.Error()})
		return Classification{}, false
	}
	if !classification.IsDocument {
		out.Stages = append(out.Stages, StageResult{Stage: StageClassify, Status: StageSuccess})
		for _, s := range []string{StageExtract, StageMatch, StageRoute} {
			out.Stages = append(out.Stages, StageResult{Stage: s, Status: StageSkipped})
		}
		if err := p.machine.Quarantine(ctx, doc.ID, "pipeline", "classifier verdict: not a document"); err != nil {
			log.Error("failed to quarantine non-document", "error", err)
		}
		return classification, true
	}
	out.Stages = append(out.Stages, StageResult{Stage: StageClassify, Status: StageSuccess})
	return classification, false
}

// extract runs the extractor, degrading to empty fields on failure.
func (p *Pipeline) extract(ctx context.Context, in Input, out *Outcome, log *slog.Logger) matcher.Extracted {
	fields, err := p.extractor.Extract(ctx, in.Content)
	if err != nil {
		log.Warn("extractor failed, degrading to empty fields", "error", err)
		out.Stages = append(out.Stages, StageResult{Stage: StageExtract, Status: StageFailed, Error: err.Error()})
		return matcher.Extracted{}
	}
	out.Stages = append(out.Stages, StageResult{Stage: StageExtract, Status: StageSuccess})
	return fields
}

// match looks up candidate jobs and scores them, degrading to a no-jobs
// result when the directory is unreachable.
func (p *Pipeline) match(ctx context.Context, fields matcher.Extracted, out *Outcome, log *slog.Logger) matcher.Result {
	jobs, err := p.jobs.Lookup(ctx, fields.JobRef, fields.VehicleReg, fields.Date)
	if err != nil {
		log.Warn("job directory lookup failed, degrading to no match", "error", err)
		out.Stages = append(out.Stages, StageResult{Stage: StageMatch, Status: StageFailed, Error: err.Error()})
		return matcher.Result{Summary: matcher.Summary{Status: matcher.StatusNoJobsFound}}
	}
	result := p.matcher.FindMatch(fields, jobs)
	out.Stages = append(out.Stages, StageResult{Stage: StageMatch, Status: StageSuccess})
	return result
}

// finish reads back the final status and audits the run.
func (p *Pipeline) finish(ctx context.Context, doc *datastore.Document, out *Outcome, log *slog.Logger) (*Outcome, error) {
	final, err := p.store.GetDocument(doc.ID)
	if err != nil {
		return out, err
	}
	out.FinalStatus = final.Status

	details := map[string]any{"final_status": string(out.FinalStatus)}
	for _, s := range out.Stages {
		if s.Status == StageFailed {
			details["degraded"] = true
			break
		}
	}
	p.sink.Record(ctx, "document.intake_completed", doc.ID, "pipeline", details)
	log.Info("intake completed", "final_status", string(out.FinalStatus))
	return out, nil
}
