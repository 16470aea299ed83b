package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/matcher"
)

func testRoutingSettings() conf.RoutingSettings {
	return conf.RoutingSettings{
		Enabled:                     true,
		NoMatchRequiresReview:       true,
		MinClassificationConfidence: 0.5,
		DefaultThreshold:            0.85,
		SupplierThresholds: map[string]float64{
			"Acme Haulage": 0.90,
			"*":            0.80,
		},
		Weights: conf.RoutingWeights{
			Classification: 0.4,
			Extraction:     0.3,
			Match:          0.3,
		},
		CacheTTL: time.Minute,
	}
}

func newTestEngine(settings conf.RoutingSettings) *Engine {
	return NewEngine(settings, NewRulesCacheFromSettings(settings))
}

func perfectMatch() matcher.Result {
	return matcher.Result{
		Match: &matcher.Candidate{
			JobID:     "j1",
			JobRef:    "AB1234",
			Score:     1.0,
			MatchType: matcher.MatchExactJobRef,
		},
		Summary: matcher.Summary{Status: matcher.StatusMatched, BestScore: 1.0},
	}
}

func TestOverallConfidence(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testRoutingSettings())

	assert.InDelta(t, 1.0, e.OverallConfidence(1.0, 1.0, 1.0), 1e-9)
	assert.InDelta(t, 0.85, e.OverallConfidence(1.0, 0.5, 1.0), 1e-9)
	assert.Zero(t, e.OverallConfidence(0, 0, 0))
}

func TestSupplierThresholdPrecedence(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testRoutingSettings())

	// Exact key wins, case-insensitively.
	assert.InDelta(t, 0.90, e.SupplierThreshold("acme haulage"), 1e-9)
	assert.InDelta(t, 0.90, e.SupplierThreshold("ACME HAULAGE"), 1e-9)
	// Unknown supplier falls to the wildcard.
	assert.InDelta(t, 0.80, e.SupplierThreshold("someone else"), 1e-9)

	// Without a wildcard the global default applies.
	settings := testRoutingSettings()
	delete(settings.SupplierThresholds, "*")
	e2 := newTestEngine(settings)
	assert.InDelta(t, 0.85, e2.SupplierThreshold("someone else"), 1e-9)
}

func TestDecideDisabled(t *testing.T) {
	t.Parallel()

	settings := testRoutingSettings()
	settings.Enabled = false
	e := newTestEngine(settings)

	d := e.Decide(DocumentInput{ClassificationConfidence: 0.99}, perfectMatch())

	assert.Equal(t, DecisionManualReview, d.Decision)
	assert.Equal(t, ReasonDisabled, d.Reason)
	assert.Equal(t, ActionReview, d.NextAction)
}

func TestDecideNoMatchRequiresReview(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testRoutingSettings())

	d := e.Decide(DocumentInput{ClassificationConfidence: 0.99},
		matcher.Result{Summary: matcher.Summary{Status: matcher.StatusNoMatch}})

	assert.Equal(t, DecisionManualReview, d.Decision)
	assert.Equal(t, ReasonNoMatch, d.Reason)
}

func TestDecideLowClassificationBeatsPerfectMatch(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testRoutingSettings())

	// A perfect match cannot rescue a low classification score: the
	// classification rule sits earlier in the table.
	d := e.Decide(DocumentInput{
		Supplier:                 "acme haulage",
		ClassificationConfidence: 0.3,
		ExtractionConfidence:     1.0,
	}, perfectMatch())

	assert.Equal(t, DecisionManualReview, d.Decision)
	assert.Equal(t, ReasonLowClassification, d.Reason)
}

func TestDecideAutoSend(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testRoutingSettings())

	d := e.Decide(DocumentInput{
		Supplier:                 "acme haulage",
		ClassificationConfidence: 0.95,
		ExtractionConfidence:     0.95,
	}, perfectMatch())

	assert.Equal(t, DecisionAutoSend, d.Decision)
	assert.Equal(t, ReasonHighConfidence, d.Reason)
	assert.Equal(t, ActionReadyForExport, d.NextAction)
	assert.GreaterOrEqual(t, d.OverallConfidence, d.Threshold)
}

func TestDecideBelowThreshold(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testRoutingSettings())

	// 0.4*0.6 + 0.3*0.6 + 0.3*0.8 = 0.66, below every configured threshold.
	d := e.Decide(DocumentInput{
		Supplier:                 "acme haulage",
		ClassificationConfidence: 0.6,
		ExtractionConfidence:     0.6,
	}, matcher.Result{
		Match:   &matcher.Candidate{Score: 0.8, MatchType: matcher.MatchFuzzyJobRef},
		Summary: matcher.Summary{Status: matcher.StatusMatched, BestScore: 0.8},
	})

	assert.Equal(t, DecisionManualReview, d.Decision)
	assert.Equal(t, ReasonBelowThreshold, d.Reason)
	assert.InDelta(t, 0.66, d.OverallConfidence, 1e-9)
}

func TestForceSendAndRejectBypassTable(t *testing.T) {
	t.Parallel()

	settings := testRoutingSettings()
	settings.Enabled = false // would normally force review
	e := newTestEngine(settings)

	force := e.ForceSend(DocumentInput{ID: "d1"}, "customer escalation")
	assert.Equal(t, DecisionForceSend, force.Decision)
	assert.Equal(t, ActionReadyForExport, force.NextAction)
	assert.Equal(t, "customer escalation", force.OverrideReason)

	reject := e.Reject(DocumentInput{ID: "d1"}, "not a POD")
	assert.Equal(t, DecisionReject, reject.Decision)
	assert.Equal(t, ActionRejected, reject.NextAction)
	assert.Equal(t, "not a POD", reject.OverrideReason)
}

func TestWeightSumValidationRejectsAtLoad(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{
		Routing: testRoutingSettings(),
		Matching: conf.MatchingSettings{
			ExactJobRefThreshold: 1.0,
			ExactPlateThreshold:  0.95,
			FuzzyJobRefThreshold: 0.90,
			FuzzyPlateThreshold:  0.85,
			MinimumScore:         0.70,
			MaxCandidates:        10,
		},
		Retention: conf.RetentionSettings{
			CleanupLimit: 100,
			Policies: []conf.RetentionPolicy{{
				PolicyID:      "p1",
				RetentionDays: 365,
				GraceDays:     30,
				AppliesTo:     []string{"document"},
			}},
		},
	}
	settings.Routing.Weights = conf.RoutingWeights{
		Classification: 0.25,
		Extraction:     0.35,
		Match:          0.39, // sums to 0.99
	}

	err := conf.ValidateSettings(settings)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "weights must sum to 1.0")
}

func TestRulesCacheInvalidateAndReload(t *testing.T) {
	t.Parallel()

	table := map[string]float64{"acme": 0.90}
	fallback := 0.85
	cache := NewRulesCache(time.Minute, func() (map[string]float64, float64) {
		out := make(map[string]float64, len(table))
		for k, v := range table {
			out[k] = v
		}
		return out, fallback
	})

	assert.InDelta(t, 0.90, cache.Threshold("acme"), 1e-9)

	// A rule change is invisible until the cache is invalidated.
	table["acme"] = 0.70
	assert.InDelta(t, 0.90, cache.Threshold("acme"), 1e-9)

	cache.Invalidate()
	assert.InDelta(t, 0.70, cache.Threshold("acme"), 1e-9)

	table["acme"] = 0.60
	cache.Reload()
	assert.InDelta(t, 0.60, cache.Threshold("acme"), 1e-9)
}
