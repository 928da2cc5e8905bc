package classification

import (
	"strings"

	"github.com/Veraticus/tierkeeper/internal/model"
)

// Keyword scoring weights.
const (
	textKeywordPoints   = 20
	textKeywordCap      = 60
	visionKeywordPoints = 10
	visionKeywordCap    = 40
)

// KeywordMatch is the best keyword-table match for a product.
type KeywordMatch struct {
	Category      model.Tier
	TextMatches   []string
	VisionMatches []string
	Score         int
	TextScore     int
	VisionScore   int
}

// Matched reports whether any keyword matched.
func (m KeywordMatch) Matched() bool {
	return m.Category != "" && m.Score > 0
}

// MatchKeywords scores name and optional vision labels against every keyword
// set. Each keyword found in the name is worth 20 points (max 60); each exact
// vision label match is worth 10 (max 40). The first set in table order wins ties.
func (t *Tables) MatchKeywords(name string, visionLabels []string) KeywordMatch {
	lowerName := strings.ToLower(name)
	labels := make(map[string]bool, len(visionLabels))
	for _, l := range visionLabels {
		labels[strings.ToLower(strings.TrimSpace(l))] = true
	}

	var best KeywordMatch
	for _, ck := range t.keywords {
		m := KeywordMatch{Category: ck.category}
		for i, kw := range ck.lower {
			if strings.Contains(lowerName, kw) {
				m.TextMatches = append(m.TextMatches, ck.original[i])
				m.TextScore += textKeywordPoints
			}
			if labels[kw] {
				m.VisionMatches = append(m.VisionMatches, ck.original[i])
				m.VisionScore += visionKeywordPoints
			}
		}
		m.TextScore = min(m.TextScore, textKeywordCap)
		m.VisionScore = min(m.VisionScore, visionKeywordCap)
		m.Score = min(100, m.TextScore+m.VisionScore)

		if m.Score > best.Score {
			best = m
		}
	}

	if best.Score == 0 {
		return KeywordMatch{}
	}
	return best
}
