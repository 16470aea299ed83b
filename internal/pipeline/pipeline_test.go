package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
	"github.com/mkarling/podkeeper/internal/lifecycle"
	"github.com/mkarling/podkeeper/internal/matcher"
	"github.com/mkarling/podkeeper/internal/routing"
	"github.com/mkarling/podkeeper/internal/testutil"
)

type stubClassifier struct {
	result Classification
	err    error
}

func (c *stubClassifier) Classify(context.Context, []byte, string) (Classification, error) {
	return c.result, c.err
}

type stubExtractor struct {
	fields matcher.Extracted
	err    error
}

func (e *stubExtractor) Extract(context.Context, []byte) (matcher.Extracted, error) {
	return e.fields, e.err
}

type stubDirectory struct {
	jobs []matcher.Job
	err  error
}

func (d *stubDirectory) Lookup(context.Context, string, string, string) ([]matcher.Job, error) {
	return d.jobs, d.err
}

type openGuard struct{}

func (openGuard) IsProtected(string) (bool, error) { return false, nil }

func matchingSettings() conf.MatchingSettings {
	return conf.MatchingSettings{
		ExactJobRefThreshold: 1.0,
		ExactPlateThreshold:  0.95,
		FuzzyJobRefThreshold: 0.90,
		FuzzyPlateThreshold:  0.85,
		MinimumScore:         0.70,
		MaxCandidates:        5,
	}
}

func routingSettings() conf.RoutingSettings {
	return conf.RoutingSettings{
		Enabled:                     true,
		NoMatchRequiresReview:       true,
		MinClassificationConfidence: 0.5,
		DefaultThreshold:            0.8,
		SupplierThresholds:          map[string]float64{},
		Weights:                     conf.RoutingWeights{Classification: 0.4, Extraction: 0.3, Match: 0.3},
		CacheTTL:                    time.Minute,
	}
}

func newFixture(classifier Classifier, extractor Extractor, jobs JobDirectory) (*Pipeline, *testutil.MemStore) {
	store := testutil.NewMemStore()
	machine := lifecycle.NewMachine(store, openGuard{}, audit.Discard{})
	engine := routing.NewEngine(routingSettings(), routing.NewRulesCacheFromSettings(routingSettings()))
	return New(classifier, extractor, jobs, matchingSettings(), engine, machine, store, audit.Discard{}), store
}

func stageStatus(out *Outcome, stage string) StageStatus {
	for _, s := range out.Stages {
		if s.Stage == stage {
			return s.Status
		}
	}
	return ""
}

func TestProcessAutoSendPath(t *testing.T) {
	t.Parallel()

	p, store := newFixture(
		&stubClassifier{result: Classification{IsDocument: true, Confidence: 0.95}},
		&stubExtractor{fields: matcher.Extracted{
			Supplier:   "Acme Logistics",
			JobRef:     "AB1234",
			VehicleReg: "GV66 XRO",
			Confidence: 0.9,
		}},
		&stubDirectory{jobs: []matcher.Job{
			{ID: "j1", JobRef: "AB1234", VehiclePlate: "GV66XRO", Supplier: "acme logistics"},
		}},
	)

	out, err := p.Process(context.Background(), Input{
		Content:  []byte("pod image"),
		MimeType: "image/jpeg",
		Supplier: "Acme Logistics",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.DocumentID)
	assert.NotEmpty(t, out.CorrelationID)

	for _, stage := range []string{StageIngest, StageClassify, StageExtract, StageMatch, StageRoute} {
		assert.Equal(t, StageSuccess, stageStatus(out, stage), stage)
	}

	require.NotNil(t, out.Match)
	require.NotNil(t, out.Match.Match)
	assert.Equal(t, matcher.MatchExactJobRef, out.Match.Match.MatchType)

	require.NotNil(t, out.Decision)
	assert.Equal(t, routing.DecisionAutoSend, out.Decision.Decision)
	assert.Equal(t, datastore.StatusOut, out.FinalStatus)

	doc, getErr := store.GetDocument(out.DocumentID)
	require.NoError(t, getErr)
	assert.Equal(t, "j1", doc.MatchedJobID)
	assert.Equal(t, "acme logistics", doc.Supplier)
	assert.NotEmpty(t, doc.ContentHash)
}

func TestProcessNonDocumentQuarantines(t *testing.T) {
	t.Parallel()

	p, store := newFixture(
		&stubClassifier{result: Classification{IsDocument: false, Confidence: 0.99}},
		&stubExtractor{},
		&stubDirectory{},
	)

	out, err := p.Process(context.Background(), Input{Content: []byte("a cat photo")})
	require.NoError(t, err)

	assert.Equal(t, StageSuccess, stageStatus(out, StageClassify))
	assert.Equal(t, StageSkipped, stageStatus(out, StageExtract))
	assert.Equal(t, StageSkipped, stageStatus(out, StageMatch))
	assert.Equal(t, StageSkipped, stageStatus(out, StageRoute))
	assert.Equal(t, datastore.StatusQuarantine, out.FinalStatus)
	assert.Nil(t, out.Decision)

	doc, getErr := store.GetDocument(out.DocumentID)
	require.NoError(t, getErr)
	assert.Equal(t, datastore.StatusQuarantine, doc.Status)
}

func TestProcessClassifierErrorDegradesToReview(t *testing.T) {
	t.Parallel()

	p, _ := newFixture(
		&stubClassifier{err: errors.NewStd("classifier unreachable")},
		&stubExtractor{fields: matcher.Extracted{JobRef: "AB1234", Confidence: 0.9}},
		&stubDirectory{jobs: []matcher.Job{{ID: "j1", JobRef: "AB1234"}}},
	)

	out, err := p.Process(context.Background(), Input{Content: []byte("pod image")})
	require.NoError(t, err)

	assert.Equal(t, StageFailed, stageStatus(out, StageClassify))
	assert.Equal(t, StageSuccess, stageStatus(out, StageMatch))

	// Zero classification confidence trips the low-classification rule.
	require.NotNil(t, out.Decision)
	assert.Equal(t, routing.DecisionManualReview, out.Decision.Decision)
	assert.Equal(t, routing.ReasonLowClassification, out.Decision.Reason)
	assert.Equal(t, datastore.StatusReview, out.FinalStatus)
}

func TestProcessExtractorErrorDegradesToNoMatch(t *testing.T) {
	t.Parallel()

	p, _ := newFixture(
		&stubClassifier{result: Classification{IsDocument: true, Confidence: 0.95}},
		&stubExtractor{err: errors.NewStd("ocr timeout")},
		&stubDirectory{jobs: []matcher.Job{{ID: "j1", JobRef: "AB1234"}}},
	)

	out, err := p.Process(context.Background(), Input{Content: []byte("pod image")})
	require.NoError(t, err)

	assert.Equal(t, StageFailed, stageStatus(out, StageExtract))
	require.NotNil(t, out.Decision)
	assert.Equal(t, routing.DecisionManualReview, out.Decision.Decision)
	assert.Equal(t, routing.ReasonNoMatch, out.Decision.Reason)
	assert.Equal(t, datastore.StatusReview, out.FinalStatus)
}

func TestProcessDirectoryErrorDegradesToNoMatch(t *testing.T) {
	t.Parallel()

	p, _ := newFixture(
		&stubClassifier{result: Classification{IsDocument: true, Confidence: 0.95}},
		&stubExtractor{fields: matcher.Extracted{JobRef: "AB1234", Confidence: 0.9}},
		&stubDirectory{err: errors.NewStd("job directory unavailable")},
	)

	out, err := p.Process(context.Background(), Input{Content: []byte("pod image")})
	require.NoError(t, err)

	assert.Equal(t, StageFailed, stageStatus(out, StageMatch))
	require.NotNil(t, out.Match)
	assert.Equal(t, matcher.StatusNoJobsFound, out.Match.Summary.Status)
	require.NotNil(t, out.Decision)
	assert.Equal(t, routing.ReasonNoMatch, out.Decision.Reason)
}

func TestProcessPreservesCallerCorrelationID(t *testing.T) {
	t.Parallel()

	p, _ := newFixture(
		&stubClassifier{result: Classification{IsDocument: true, Confidence: 0.95}},
		&stubExtractor{},
		&stubDirectory{},
	)

	ctx := audit.WithCorrelationID(context.Background(), "corr-42")
	out, err := p.Process(ctx, Input{Content: []byte("pod image")})
	require.NoError(t, err)
	assert.Equal(t, "corr-42", out.CorrelationID)
}
