// conf/validate.go

package conf

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// WeightSumTolerance is the allowed deviation of the routing weight sum from 1.0.
const WeightSumTolerance = 0.001

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateSettings validates the entire Settings struct. It collects every
// violation rather than stopping at the first.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validate.Struct(settings); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				ve.Errors = append(ve.Errors, fmt.Sprintf("%s fails %q constraint", fe.Namespace(), fe.Tag()))
			}
		} else {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if err := validateRoutingSettings(&settings.Routing); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateMatchingSettings(&settings.Matching); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateRetentionSettings(&settings.Retention); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// validateRoutingSettings checks the weight sum and supplier threshold ranges.
func validateRoutingSettings(routing *RoutingSettings) error {
	sum := routing.Weights.Classification + routing.Weights.Extraction + routing.Weights.Match
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("routing weights must sum to 1.0 (got %.4f)", sum)
	}

	for supplier, threshold := range routing.SupplierThresholds {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("supplier threshold for %q out of range [0,1]: %.4f", supplier, threshold)
		}
		if strings.TrimSpace(supplier) == "" {
			return fmt.Errorf("supplier threshold key must not be blank")
		}
	}

	return nil
}

// validateMatchingSettings enforces the tier ordering: exact tiers must not
// be looser than fuzzy tiers, and the global floor must sit below every tier.
func validateMatchingSettings(matching *MatchingSettings) error {
	if matching.ExactJobRefThreshold < matching.FuzzyJobRefThreshold {
		return fmt.Errorf("exact job ref threshold (%.2f) below fuzzy threshold (%.2f)",
			matching.ExactJobRefThreshold, matching.FuzzyJobRefThreshold)
	}
	if matching.ExactPlateThreshold < matching.FuzzyPlateThreshold {
		return fmt.Errorf("exact plate threshold (%.2f) below fuzzy threshold (%.2f)",
			matching.ExactPlateThreshold, matching.FuzzyPlateThreshold)
	}
	if matching.MinimumScore > matching.FuzzyPlateThreshold {
		return fmt.Errorf("minimum score (%.2f) above fuzzy plate threshold (%.2f)",
			matching.MinimumScore, matching.FuzzyPlateThreshold)
	}
	return nil
}

// validateRetentionSettings checks for duplicate policy ids and overlapping
// entity-type assignments.
func validateRetentionSettings(retention *RetentionSettings) error {
	seenIDs := make(map[string]bool)
	seenTypes := make(map[string]string)
	for i := range retention.Policies {
		p := &retention.Policies[i]
		if seenIDs[p.PolicyID] {
			return fmt.Errorf("duplicate retention policy id %q", p.PolicyID)
		}
		seenIDs[p.PolicyID] = true
		for _, t := range p.AppliesTo {
			if prev, ok := seenTypes[t]; ok {
				return fmt.Errorf("entity type %q claimed by policies %q and %q", t, prev, p.PolicyID)
			}
			seenTypes[t] = p.PolicyID
		}
	}
	return nil
}
