// Package classification holds the immutable scoring and keyword tables used
// to rank products and infer archive sub-categories.
package classification

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
)

// KeywordSet lists the keywords that signal one archive sub-category.
type KeywordSet struct {
	Category model.Tier `mapstructure:"category"`
	Keywords []string   `mapstructure:"keywords"`
}

// TableConfig is the raw form of Tables, usually loaded from configuration.
type TableConfig struct {
	BrandScores     map[string]int
	BrandTierScores map[string]int
	GradeScores     map[string]int
	Keywords        []KeywordSet
	AICategories    []model.Tier
}

// Tables is read-only after construction and safe for concurrent use.
type Tables struct {
	brandScores     map[string]int
	brandTierScores map[string]int
	gradeScores     map[string]int
	keywords        []compiledKeywords
	aiCategories    []model.Tier
}

type compiledKeywords struct {
	category model.Tier
	original []string
	lower    []string
}

// NewTables validates cfg and returns an immutable copy of it.
func NewTables(cfg TableConfig) (*Tables, error) {
	t := &Tables{
		brandScores:     make(map[string]int, len(cfg.BrandScores)),
		brandTierScores: make(map[string]int, len(cfg.BrandTierScores)),
		gradeScores:     make(map[string]int, len(cfg.GradeScores)),
	}

	if err := copyScores(t.brandScores, cfg.BrandScores, "brand score"); err != nil {
		return nil, err
	}
	if err := copyScores(t.brandTierScores, cfg.BrandTierScores, "brand tier score"); err != nil {
		return nil, err
	}
	if err := copyScores(t.gradeScores, cfg.GradeScores, "grade score"); err != nil {
		return nil, err
	}

	for _, set := range cfg.Keywords {
		if !set.Category.IsArchiveSub() {
			return nil, fmt.Errorf("%w: keyword category %q is not an archive sub-category", common.ErrInvalidConfig, set.Category)
		}
		ck := compiledKeywords{category: set.Category}
		for _, kw := range set.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			ck.original = append(ck.original, kw)
			ck.lower = append(ck.lower, strings.ToLower(kw))
		}
		t.keywords = append(t.keywords, ck)
	}

	for _, c := range cfg.AICategories {
		if !c.IsArchiveSub() {
			return nil, fmt.Errorf("%w: AI category %q is not an archive sub-category", common.ErrInvalidConfig, c)
		}
		t.aiCategories = append(t.aiCategories, c)
	}
	if len(t.aiCategories) == 0 {
		return nil, fmt.Errorf("%w: at least one AI category is required", common.ErrInvalidConfig)
	}

	return t, nil
}

func copyScores(dst, src map[string]int, what string) error {
	for k, v := range src {
		if v < 0 {
			return fmt.Errorf("%w: negative %s for %q", common.ErrInvalidConfig, what, k)
		}
		dst[normalizeKey(k)] = v
	}
	return nil
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// BrandScore returns the desirability of brand, falling back to the coarse
// brand tier (LUXURY, PREMIUM, MID, BASIC) when the brand is unknown.
func (t *Tables) BrandScore(brand, brandTier string) int {
	if score, ok := t.brandScores[normalizeKey(brand)]; ok && score > 0 {
		return score
	}
	return t.brandTierScores[normalizeKey(brandTier)]
}

// GradeScore returns the score for a quality grade such as "S" or "A급".
func (t *Tables) GradeScore(grade string) int {
	return t.gradeScores[normalizeKey(grade)]
}

// AICategories returns the sub-categories the AI provider may answer with.
func (t *Tables) AICategories() []model.Tier {
	out := make([]model.Tier, len(t.aiCategories))
	copy(out, t.aiCategories)
	return out
}

// KeywordSets returns a copy of the keyword table.
func (t *Tables) KeywordSets() []KeywordSet {
	out := make([]KeywordSet, 0, len(t.keywords))
	for _, ck := range t.keywords {
		out = append(out, KeywordSet{Category: ck.category, Keywords: append([]string(nil), ck.original...)})
	}
	return out
}
