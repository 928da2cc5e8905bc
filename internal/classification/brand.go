package classification

import (
	"regexp"
	"strings"
)

// leadingBrand matches a run of Latin capitals, digits and brand punctuation
// that is followed by a Hangul word, e.g. "STONE ISLAND 스톤아일랜드 자켓".
var leadingBrand = regexp.MustCompile(`^([A-Z0-9&.'\-\s]+?)\s+\p{Hangul}`)

// ExtractBrand guesses a brand from a product name when none is recorded.
func ExtractBrand(name string) string {
	if m := leadingBrand.FindStringSubmatch(name); m != nil {
		return strings.TrimSpace(m[1])
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
