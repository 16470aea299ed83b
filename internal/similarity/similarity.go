// Package similarity implements the string comparison primitives used by
// document-to-job matching: normalization, Levenshtein edit distance,
// Jaro-Winkler similarity and vehicle plate parsing.
package similarity

import (
	"sort"
	"strings"
	"unicode"
)

// Normalize lowercases s and strips whitespace, hyphens, underscores and all
// other non-alphanumeric characters.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EditDistance returns the Levenshtein distance between a and b using a full
// dynamic-programming table.
func EditDistance(a, b string) int {
	ar := []rune(a)
	br := []rune(b)

	rows := len(ar) + 1
	cols := len(br) + 1
	table := make([][]int, rows)
	for i := range table {
		table[i] = make([]int, cols)
		table[i][0] = i
	}
	for j := 0; j < cols; j++ {
		table[0][j] = j
	}

	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			deletion := table[i-1][j] + 1
			insertion := table[i][j-1] + 1
			substitution := table[i-1][j-1] + cost

			minimum := deletion
			if insertion < minimum {
				minimum = insertion
			}
			if substitution < minimum {
				minimum = substitution
			}
			table[i][j] = minimum
		}
	}

	return table[rows-1][cols-1]
}

// winklerPrefixLimit caps the common prefix counted toward the Winkler bonus.
const winklerPrefixLimit = 4

// winklerScale is the per-prefix-character bonus weight.
const winklerScale = 0.1

// Similarity returns the Jaro-Winkler similarity of a and b in [0,1].
// Identical strings score 1.0, and if either string is empty the result
// is 0.0.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ar := []rune(a)
	br := []rune(b)

	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}
	window := maxLen/2 - 1
	if window < 0 {
		return 0.0
	}

	aMatched := make([]bool, len(ar))
	bMatched := make([]bool, len(br))
	matches := 0

	// Greedily match characters within the window without reusing a
	// target position.
	for i := range ar {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window
		if hi >= len(br) {
			hi = len(br) - 1
		}
		for j := lo; j <= hi; j++ {
			if bMatched[j] || ar[i] != br[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Count transpositions among matched pairs in original order.
	mismatched := 0
	j := 0
	for i := range ar {
		if !aMatched[i] {
			continue
		}
		for !bMatched[j] {
			j++
		}
		if ar[i] != br[j] {
			mismatched++
		}
		j++
	}
	transpositions := float64(mismatched) / 2.0

	m := float64(matches)
	jaro := (m/float64(len(ar)) + m/float64(len(br)) + (m-transpositions)/m) / 3.0

	// Winkler bonus for a shared prefix, capped at four characters.
	prefix := 0
	for i := 0; i < len(ar) && i < len(br) && i < winklerPrefixLimit; i++ {
		if ar[i] != br[i] {
			break
		}
		prefix++
	}

	result := jaro + float64(prefix)*winklerScale*(1.0-jaro)
	if result > 1.0 {
		result = 1.0
	}
	return result
}

// FuzzyMatch normalizes both inputs and returns their similarity when it
// meets the threshold. A return of 0.0 is the explicit no-match sentinel,
// not a legitimate low score.
func FuzzyMatch(input, target string, threshold float64) float64 {
	score := Similarity(Normalize(input), Normalize(target))
	if score < threshold {
		return 0.0
	}
	return score
}

// RankedTarget is one scored entry from RankTargets.
type RankedTarget struct {
	Target string
	Score  float64
}

// RankTargets scores every target against input with FuzzyMatch, drops
// zero scores, and returns the top results sorted by descending score,
// truncated to limit. Ties keep their input order.
func RankTargets(input string, targets []string, threshold float64, limit int) []RankedTarget {
	ranked := make([]RankedTarget, 0, len(targets))
	for _, t := range targets {
		score := FuzzyMatch(input, t, threshold)
		if score == 0.0 {
			continue
		}
		ranked = append(ranked, RankedTarget{Target: t, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
