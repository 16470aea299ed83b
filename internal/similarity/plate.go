// plate.go - vehicle registration plate parsing
package similarity

import (
	"regexp"
	"strings"
)

// plateFormats are the accepted regional registration formats, checked in
// order. Anything that matches none of them is rejected.
var plateFormats = []*regexp.Regexp{
	// Current style: two letters, two digits, three letters, e.g. GV66XRO
	regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z]{3}$`),
	// Prefix style: year letter, up to three digits, three letters, e.g. P123ABC
	regexp.MustCompile(`^[A-Z][0-9]{1,3}[A-Z]{3}$`),
	// Suffix style: three letters, up to three digits, year letter, e.g. ABC123D
	regexp.MustCompile(`^[A-Z]{3}[0-9]{1,3}[A-Z]$`),
	// Dateless regional: one or two letters followed by up to four digits, e.g. XR1234
	regexp.MustCompile(`^[A-Z]{1,2}[0-9]{1,4}$`),
}

// ParsePlate uppercases s, strips whitespace, and returns the canonical
// plate if it matches one of the accepted registration formats. The second
// return value is false when the input is not a recognizable plate.
func ParsePlate(s string) (string, bool) {
	cleaned := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if cleaned == "" {
		return "", false
	}
	for _, format := range plateFormats {
		if format.MatchString(cleaned) {
			return cleaned, true
		}
	}
	return "", false
}
