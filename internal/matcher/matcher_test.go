package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarling/podkeeper/internal/conf"
)

func testSettings() conf.MatchingSettings {
	return conf.MatchingSettings{
		ExactJobRefThreshold: 1.0,
		ExactPlateThreshold:  0.95,
		FuzzyJobRefThreshold: 0.90,
		FuzzyPlateThreshold:  0.85,
		MinimumScore:         0.70,
		MaxCandidates:        10,
	}
}

func TestFindMatchNoJobs(t *testing.T) {
	t.Parallel()

	m := New(testSettings())
	result := m.FindMatch(Extracted{JobRef: "AB1234"}, nil)

	assert.Equal(t, StatusNoJobsFound, result.Summary.Status)
	assert.Nil(t, result.Match)
}

func TestFindMatchExactJobRef(t *testing.T) {
	t.Parallel()

	m := New(testSettings())
	jobs := []Job{{ID: "j1", JobRef: "AB1234", VehiclePlate: "GV66XRO"}}

	result := m.FindMatch(Extracted{JobRef: "AB1234"}, jobs)

	require.NotNil(t, result.Match)
	assert.Equal(t, MatchExactJobRef, result.Match.MatchType)
	assert.InDelta(t, 1.0, result.Match.Score, 1e-9)
	assert.Equal(t, StatusMatched, result.Summary.Status)
	assert.Equal(t, 1, result.Summary.JobsSearched)
}

func TestFindMatchExactJobRefIgnoresFormatting(t *testing.T) {
	t.Parallel()

	m := New(testSettings())
	jobs := []Job{{ID: "j1", JobRef: "AB-1234"}}

	result := m.FindMatch(Extracted{JobRef: "ab 1234"}, jobs)

	require.NotNil(t, result.Match)
	assert.Equal(t, MatchExactJobRef, result.Match.MatchType)
}

func TestFindMatchExactPlate(t *testing.T) {
	t.Parallel()

	m := New(testSettings())
	jobs := []Job{{ID: "j1", JobRef: "ZZ9999", VehiclePlate: "GV66XRO"}}

	result := m.FindMatch(Extracted{JobRef: "QQ0000", VehicleReg: "gv 66 xro"}, jobs)

	require.NotNil(t, result.Match)
	assert.Equal(t, MatchExactVehicleReg, result.Match.MatchType)
	assert.GreaterOrEqual(t, result.Match.Score, 0.95)
}

func TestFindMatchFuzzyJobRef(t *testing.T) {
	t.Parallel()

	m := New(testSettings())
	jobs := []Job{{ID: "j1", JobRef: "AB1234"}}

	// One edit away from the real reference.
	result := m.FindMatch(Extracted{JobRef: "AB1235"}, jobs)

	require.NotNil(t, result.Match)
	assert.Equal(t, MatchFuzzyJobRef, result.Match.MatchType)
	assert.GreaterOrEqual(t, result.Match.Score, 0.90)
}

func TestFindMatchFuzzyTiersSkippedWhenExactHit(t *testing.T) {
	t.Parallel()

	m := New(testSettings())
	jobs := []Job{
		{ID: "j1", JobRef: "AB1234"},
		{ID: "j2", JobRef: "AB1235"},
	}

	result := m.FindMatch(Extracted{JobRef: "AB1234"}, jobs)

	require.NotNil(t, result.Match)
	assert.Equal(t, "j1", result.Match.JobID)
	for _, c := range result.Candidates {
		assert.Equal(t, MatchExactJobRef, c.MatchType)
	}
}

func TestFindMatchGlobalFloor(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	// Loosen fuzzy tiers so weak scores surface, then verify the floor
	// still reports them as no match.
	settings.FuzzyJobRefThreshold = 0.10
	settings.FuzzyPlateThreshold = 0.10
	settings.MinimumScore = 0.999
	m := New(settings)

	jobs := []Job{{ID: "j1", JobRef: "AB1239"}}
	result := m.FindMatch(Extracted{JobRef: "AB1000"}, jobs)

	assert.Nil(t, result.Match)
	assert.Equal(t, StatusNoMatch, result.Summary.Status)
	assert.NotEmpty(t, result.Candidates)
	assert.Greater(t, result.Summary.BestScore, 0.0)
}

func TestFindMatchTieBreakKeepsScanOrder(t *testing.T) {
	t.Parallel()

	m := New(testSettings())
	// Both jobs carry the same reference; the first encountered must win.
	jobs := []Job{
		{ID: "first", JobRef: "AB1234"},
		{ID: "second", JobRef: "AB1234"},
	}

	result := m.FindMatch(Extracted{JobRef: "AB1234"}, jobs)

	require.NotNil(t, result.Match)
	assert.Equal(t, "first", result.Match.JobID)
}

func TestFindMatchNoMatchIsDataNotError(t *testing.T) {
	t.Parallel()

	m := New(testSettings())
	jobs := []Job{{ID: "j1", JobRef: "ZZZZ99", VehiclePlate: "AA11AAA"}}

	result := m.FindMatch(Extracted{JobRef: "QQ1234", VehicleReg: "BB22BBB"}, jobs)

	assert.Nil(t, result.Match)
	assert.Equal(t, StatusNoMatch, result.Summary.Status)
	assert.Empty(t, result.Candidates)
}

func TestFindMatchCandidateLimit(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.MaxCandidates = 2
	m := New(settings)

	jobs := []Job{
		{ID: "j1", JobRef: "AB1234"},
		{ID: "j2", JobRef: "AB1234"},
		{ID: "j3", JobRef: "AB1234"},
	}

	result := m.FindMatch(Extracted{JobRef: "AB1234"}, jobs)
	assert.Len(t, result.Candidates, 2)
}
