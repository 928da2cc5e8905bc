package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/model"
)

// Fusion weights.
const (
	brandWeight        = 0.4
	brandNoImageWeight = 0.3
	visualWeight       = 0.4
	keywordWeight      = 0.2
	agreementBonus     = 10.0
	minFusedScore      = 30.0
)

// Signal sources.
const (
	SourceBrand   = "brand"
	SourceVisual  = "visual"
	SourceKeyword = "keyword"
)

var categoryAliases = map[string]model.Tier{
	"MILITARY":          model.TierMilitaryArchive,
	"WORKWEAR":          model.TierWorkwearArchive,
	"OUTDOOR":           model.TierOutdoorArchive,
	"JAPANESE":          model.TierJapaneseArchive,
	"JAPAN":             model.TierJapaneseArchive,
	"HERITAGE":          model.TierHeritageEurope,
	"EUROPE":            model.TierHeritageEurope,
	"EUROPEAN HERITAGE": model.TierHeritageEurope,
	"HERITAGE ARCHIVE":  model.TierHeritageEurope,
	"BRITISH":           model.TierBritishArchive,
	"UK":                model.TierBritishArchive,
}

// ArchiveClassifier resolves a product into an archive sub-category by
// fusing a brand analysis, a visual analysis and the keyword table.
type ArchiveClassifier struct {
	client Client
	images *ImageFetcher
	tables *classification.Tables
	logger *slog.Logger
}

// NewArchiveClassifier creates a classifier. images may be nil to disable the visual phase.
func NewArchiveClassifier(client Client, images *ImageFetcher, tables *classification.Tables, logger *slog.Logger) *ArchiveClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveClassifier{
		client: client,
		images: images,
		tables: tables,
		logger: logger,
	}
}

type brandAnswer struct {
	Brand        string  `json:"brand"`
	Country      string  `json:"country"`
	Founded      string  `json:"founded"`
	StyleLineage string  `json:"styleLineage"`
	Category     string  `json:"category"`
	Reason       string  `json:"reason"`
	Confidence   flexInt `json:"confidence"`
}

type visualAnswer struct {
	ClothingType string   `json:"clothingType"`
	Fabric       string   `json:"fabric"`
	Pattern      string   `json:"pattern"`
	Structure    string   `json:"structure"`
	Category     string   `json:"category"`
	Reason       string   `json:"reason"`
	Details      []string `json:"details"`
	Confidence   flexInt  `json:"confidence"`
}

func (v visualAnswer) labels() []string {
	labels := make([]string, 0, len(v.Details)+3)
	for _, l := range append([]string{v.ClothingType, v.Fabric, v.Pattern}, v.Details...) {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// Classify returns the fused archive sub-category for p.
func (a *ArchiveClassifier) Classify(ctx context.Context, p model.Product) (model.ArchiveResult, error) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return model.ArchiveResult{}, newProviderError(KindInvalidInput, "product id and name are required", nil)
	}

	brandName := p.Brand
	if brandName == "" {
		brandName = classification.ExtractBrand(p.Name)
	}
	categories := a.tables.AICategories()

	var (
		brandSignal model.ArchiveSignal
		brandInfo   brandAnswer
		brandErr    error
		image       Image
		hasImage    bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		brandSignal, brandInfo, brandErr = a.brandPhase(gctx, p.Name, brandName, categories)
		return nil
	})
	if a.images != nil && p.ImageURL != "" {
		g.Go(func() error {
			img, err := a.images.Fetch(gctx, p.ImageURL)
			if err != nil {
				a.logger.Warn("image unavailable, continuing without visual phase",
					"product_id", p.ID,
					"error", err)
				return nil
			}
			image, hasImage = img, true
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return model.ArchiveResult{}, AsProviderError(ctx.Err())
	}

	if brandInfo.Brand != "" {
		brandName = brandInfo.Brand
	}

	var (
		visualSignal model.ArchiveSignal
		labels       []string
		visualErr    error
	)
	if hasImage {
		var answer visualAnswer
		visualSignal, answer, visualErr = a.visualPhase(ctx, p.Name, brandName, brandSignal, image, categories)
		labels = answer.labels()
		if visualErr != nil {
			a.logger.Debug("visual phase failed", "product_id", p.ID, "error", visualErr)
		}
	}

	if brandErr != nil && (!hasImage || visualErr != nil) {
		if visualErr != nil {
			return model.ArchiveResult{}, AsProviderError(visualErr)
		}
		return model.ArchiveResult{}, AsProviderError(brandErr)
	}

	keywords := a.tables.MatchKeywords(p.Name, labels)

	result, ok := fuseSignals(categories, brandSignal, visualSignal, keywords, hasImage)
	if !ok {
		return model.ArchiveResult{}, newProviderError(KindInsufficientEvidence,
			fmt.Sprintf("best fused score %d does not exceed %d", result.Confidence, int(minFusedScore)), nil)
	}
	result.Brand = brandName
	return result, nil
}

func (a *ArchiveClassifier) brandPhase(ctx context.Context, name, brand string, categories []model.Tier) (model.ArchiveSignal, brandAnswer, error) {
	req := Request{
		System:   archiveSystemPrompt,
		Prompt:   buildBrandPrompt(name, brand, categories),
		Grounded: true,
	}

	text, err := a.client.Generate(ctx, req)
	if err != nil && ctx.Err() == nil {
		a.logger.Debug("grounded brand lookup failed, retrying without search", "error", err)
		req.Grounded, req.JSON = false, true
		text, err = a.client.Generate(ctx, req)
	}
	if err != nil {
		return model.ArchiveSignal{}, brandAnswer{}, err
	}

	var answer brandAnswer
	if err := decodeJSON(text, &answer); err != nil {
		return model.ArchiveSignal{}, brandAnswer{}, err
	}

	category, err := normalizeCategory(answer.Category, categories)
	if err != nil {
		return model.ArchiveSignal{}, answer, err
	}
	reason := answer.Reason
	if answer.StyleLineage != "" && !strings.Contains(reason, answer.StyleLineage) {
		reason = strings.TrimSpace(answer.StyleLineage + ". " + reason)
	}

	return model.ArchiveSignal{
		Source:     SourceBrand,
		Category:   category,
		Confidence: clampConfidence(int(answer.Confidence)),
		Reason:     reason,
	}, answer, nil
}

func (a *ArchiveClassifier) visualPhase(ctx context.Context, name, brand string, brandSignal model.ArchiveSignal, image Image, categories []model.Tier) (model.ArchiveSignal, visualAnswer, error) {
	text, err := a.client.Generate(ctx, Request{
		System: archiveSystemPrompt,
		Prompt: buildVisualPrompt(name, brandSignal, brand, categories),
		Images: []Image{image},
		JSON:   true,
	})
	if err != nil {
		return model.ArchiveSignal{}, visualAnswer{}, err
	}

	var answer visualAnswer
	if err := decodeJSON(text, &answer); err != nil {
		return model.ArchiveSignal{}, visualAnswer{}, err
	}

	category, err := normalizeCategory(answer.Category, categories)
	if err != nil {
		return model.ArchiveSignal{}, answer, err
	}

	return model.ArchiveSignal{
		Source:     SourceVisual,
		Category:   category,
		Confidence: clampConfidence(int(answer.Confidence)),
		Reason:     answer.Reason,
	}, answer, nil
}

// normalizeCategory maps a free-form answer onto one of categories. NONE and
// empty answers map to "". Anything else is an unrecognized ProviderError.
func normalizeCategory(answer string, categories []model.Tier) (model.Tier, error) {
	s := strings.ToUpper(strings.TrimSpace(answer))
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
	switch s {
	case "", "NONE", "N/A", "NULL", "UNKNOWN":
		return "", nil
	}

	candidates := []model.Tier{model.Tier(s), model.Tier(s + " ARCHIVE")}
	if alias, ok := categoryAliases[s]; ok {
		candidates = append(candidates, alias)
	}
	for _, candidate := range candidates {
		for _, c := range categories {
			if candidate == c {
				return c, nil
			}
		}
	}
	return "", newProviderError(KindUnrecognized, fmt.Sprintf("unrecognized category %q", answer), nil)
}

// fuseSignals scores every category and returns the best one. ok is false
// when no category scores above the minimum; the result still carries the
// best score as its confidence.
func fuseSignals(categories []model.Tier, brand, visual model.ArchiveSignal, keywords classification.KeywordMatch, hasImage bool) (model.ArchiveResult, bool) {
	var (
		best        model.ArchiveResult
		bestScore   float64
		bestReasons []string
	)

	for _, category := range categories {
		var (
			score   float64
			agree   int
			reasons []string
		)
		if brand.Category == category {
			score += float64(brand.Confidence) * brandWeight
			if !hasImage {
				score += float64(brand.Confidence) * brandNoImageWeight
			}
			agree++
			reasons = append(reasons, signalReason(SourceBrand, brand.Confidence, brand.Reason))
		}
		if visual.Category == category {
			score += float64(visual.Confidence) * visualWeight
			agree++
			reasons = append(reasons, signalReason(SourceVisual, visual.Confidence, visual.Reason))
		}
		if keywords.Matched() && keywords.Category == category {
			score += float64(keywords.Score) * keywordWeight
			agree++
			matched := append(append([]string{}, keywords.TextMatches...), keywords.VisionMatches...)
			reasons = append(reasons, signalReason(SourceKeyword, keywords.Score, strings.Join(matched, ", ")))
		}
		if agree >= 2 {
			score += agreementBonus
		}

		if score > bestScore {
			bestScore = score
			bestReasons = reasons
			best.Category = category
		}
	}

	best.Confidence = int(math.Round(math.Min(100, bestScore)))
	best.Reason = strings.Join(bestReasons, " | ")
	return best, bestScore > minFusedScore
}

func signalReason(source string, confidence int, detail string) string {
	if detail == "" {
		return fmt.Sprintf("%s %d", source, confidence)
	}
	return fmt.Sprintf("%s %d: %s", source, confidence, detail)
}
