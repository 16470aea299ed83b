// Package matcher ranks logistics job records against the fields extracted
// from a delivery document and picks the best candidate.
package matcher

import (
	"log/slog"
	"sort"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/logging"
	"github.com/mkarling/podkeeper/internal/similarity"
)

// MatchType classifies how a candidate was matched. Ordering is fixed:
// exact beats fuzzy beats no match.
type MatchType string

const (
	MatchExactJobRef     MatchType = "EXACT_JOB_REF"
	MatchExactVehicleReg MatchType = "EXACT_VEHICLE_REG"
	MatchFuzzyJobRef     MatchType = "FUZZY_JOB_REF"
	MatchFuzzyVehicleReg MatchType = "FUZZY_VEHICLE_REG"
	MatchNone            MatchType = "NO_MATCH"
)

// MatchStatus summarizes the outcome of a match attempt. Empty candidate
// sets and below-floor scores are data conditions, not errors.
type MatchStatus string

const (
	StatusMatched     MatchStatus = "MATCHED"
	StatusNoMatch     MatchStatus = "NO_MATCH"
	StatusNoJobsFound MatchStatus = "NO_JOBS_FOUND"
)

// Job is the read-only job directory record the matcher scans.
type Job struct {
	ID           string
	JobRef       string
	VehiclePlate string
	Supplier     string
}

// Extracted are the document fields produced by the extractor.
type Extracted struct {
	Supplier   string
	JobRef     string
	VehicleReg string
	Date       string
	Confidence float64
}

// Candidate is one scored job.
type Candidate struct {
	JobID     string
	JobRef    string
	Score     float64
	MatchType MatchType
}

// Summary describes the overall match attempt.
type Summary struct {
	Status       MatchStatus
	BestScore    float64
	JobsSearched int
}

// Result carries the winning candidate (nil when none), every scored
// candidate, and the attempt summary.
type Result struct {
	Match      *Candidate
	Candidates []Candidate
	Summary    Summary
}

// Matcher scores extracted document fields against candidate jobs.
type Matcher struct {
	settings conf.MatchingSettings
	logger   *slog.Logger
}

// New creates a Matcher using the supplied matching thresholds.
func New(settings conf.MatchingSettings) *Matcher {
	return &Matcher{
		settings: settings,
		logger:   logging.ForService("matcher"),
	}
}

// FindMatch evaluates the extracted fields against every candidate job.
// Exact tiers are tried first; fuzzy tiers only run when no exact tier hit.
// Candidates are sorted by descending score with first-encountered scan
// order breaking ties, and a best score below the global floor is reported
// as NO_MATCH regardless of tier.
func (m *Matcher) FindMatch(fields Extracted, jobs []Job) Result {
	if len(jobs) == 0 {
		return Result{Summary: Summary{Status: StatusNoJobsFound}}
	}

	var candidates []Candidate

	exactRef := m.scanJobRefs(fields.JobRef, jobs, m.settings.ExactJobRefThreshold, MatchExactJobRef)
	exactPlate := m.scanPlates(fields.VehicleReg, jobs, m.settings.ExactPlateThreshold, MatchExactVehicleReg)
	candidates = append(candidates, exactRef...)
	candidates = append(candidates, exactPlate...)

	if len(candidates) == 0 {
		fuzzyRef := m.scanJobRefs(fields.JobRef, jobs, m.settings.FuzzyJobRefThreshold, MatchFuzzyJobRef)
		fuzzyPlate := m.scanPlates(fields.VehicleReg, jobs, m.settings.FuzzyPlateThreshold, MatchFuzzyVehicleReg)
		candidates = append(candidates, fuzzyRef...)
		candidates = append(candidates, fuzzyPlate...)
	}

	// Stable sort keeps first-encountered scan order on equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if m.settings.MaxCandidates > 0 && len(candidates) > m.settings.MaxCandidates {
		candidates = candidates[:m.settings.MaxCandidates]
	}

	if len(candidates) == 0 {
		return Result{
			Candidates: candidates,
			Summary:    Summary{Status: StatusNoMatch, JobsSearched: len(jobs)},
		}
	}

	best := candidates[0]
	if best.Score < m.settings.MinimumScore {
		m.logger.Debug("best score below global floor, reporting no match",
			"best_score", best.Score,
			"floor", m.settings.MinimumScore)
		return Result{
			Candidates: candidates,
			Summary:    Summary{Status: StatusNoMatch, BestScore: best.Score, JobsSearched: len(jobs)},
		}
	}

	return Result{
		Match:      &best,
		Candidates: candidates,
		Summary:    Summary{Status: StatusMatched, BestScore: best.Score, JobsSearched: len(jobs)},
	}
}

// scanJobRefs scores the extracted job reference against every job's
// reference at the given threshold.
func (m *Matcher) scanJobRefs(jobRef string, jobs []Job, threshold float64, matchType MatchType) []Candidate {
	if jobRef == "" {
		return nil
	}
	var hits []Candidate
	for i := range jobs {
		score := similarity.FuzzyMatch(jobRef, jobs[i].JobRef, threshold)
		if score == 0.0 {
			continue
		}
		hits = append(hits, Candidate{
			JobID:     jobs[i].ID,
			JobRef:    jobs[i].JobRef,
			Score:     score,
			MatchType: matchType,
		})
	}
	return hits
}

// scanPlates scores the extracted vehicle registration against every job's
// plate. The extracted value is canonicalized first; an unparseable plate
// is compared as-is since OCR noise is exactly what fuzzy tiers exist for.
func (m *Matcher) scanPlates(vehicleReg string, jobs []Job, threshold float64, matchType MatchType) []Candidate {
	if vehicleReg == "" {
		return nil
	}
	input := vehicleReg
	if plate, ok := similarity.ParsePlate(vehicleReg); ok {
		input = plate
	}
	var hits []Candidate
	for i := range jobs {
		if jobs[i].VehiclePlate == "" {
			continue
		}
		score := similarity.FuzzyMatch(input, jobs[i].VehiclePlate, threshold)
		if score == 0.0 {
			continue
		}
		hits = append(hits, Candidate{
			JobID:     jobs[i].ID,
			JobRef:    jobs[i].JobRef,
			Score:     score,
			MatchType: matchType,
		})
	}
	return hits
}
