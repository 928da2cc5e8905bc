package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tierkeeper/internal/model"
)

// MaxVisionImages caps the photos sent per analysis.
const MaxVisionImages = 4

// Fallback values for fields the model leaves empty.
const (
	defaultClothingType = "OTHER"
	defaultGender       = "UNKNOWN"
	defaultGrade        = "A"
	defaultPattern      = "SOLID"
)

// VisionAnalyzer describes a product from its photos.
type VisionAnalyzer struct {
	client    Client
	images    *ImageFetcher
	logger    *slog.Logger
	now       func() time.Time
	maxImages int
}

// NewVisionAnalyzer creates an analyzer that sends up to MaxVisionImages photos.
func NewVisionAnalyzer(client Client, images *ImageFetcher, logger *slog.Logger) *VisionAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionAnalyzer{
		client:    client,
		images:    images,
		logger:    logger,
		now:       time.Now,
		maxImages: MaxVisionImages,
	}
}

type visionAnswer struct {
	Brand           string   `json:"brand"`
	ClothingType    string   `json:"clothingType"`
	ClothingSubType string   `json:"clothingSubType"`
	Gender          string   `json:"gender"`
	Grade           string   `json:"grade"`
	GradeReason     string   `json:"gradeReason"`
	Pattern         string   `json:"pattern"`
	Fabric          string   `json:"fabric"`
	Size            string   `json:"size"`
	Colors          []string `json:"colors"`
	Confidence      flexInt  `json:"confidence"`
}

// Analyze fetches the product's photos and returns a completed analysis.
func (v *VisionAnalyzer) Analyze(ctx context.Context, p model.Product) (model.VisionAnalysis, error) {
	if strings.TrimSpace(p.ID) == "" {
		return model.VisionAnalysis{}, newProviderError(KindInvalidInput, "product id is required", nil)
	}

	images := v.images.FetchAll(ctx, p.ImageURLs(), v.maxImages)
	if len(images) == 0 {
		if ctx.Err() != nil {
			return model.VisionAnalysis{}, AsProviderError(ctx.Err())
		}
		return model.VisionAnalysis{}, newProviderError(KindInvalidInput, "no product images could be loaded", nil)
	}

	prompt := visionPrompt
	if p.Name != "" {
		prompt = "Product name: " + p.Name + "\n\n" + prompt
	}

	text, err := v.client.Generate(ctx, Request{
		System: visionSystemPrompt,
		Prompt: prompt,
		Images: images,
		JSON:   true,
	})
	if err != nil {
		return model.VisionAnalysis{}, AsProviderError(err)
	}

	var answer visionAnswer
	if err := decodeJSON(text, &answer); err != nil {
		return model.VisionAnalysis{}, err
	}

	v.logger.Debug("vision analysis complete",
		"product_id", p.ID,
		"images", len(images),
		"grade", answer.Grade)

	return model.VisionAnalysis{
		ProductID:       p.ID,
		Status:          model.VisionCompleted,
		AnalyzedAt:      v.now().UTC(),
		Brand:           strings.TrimSpace(answer.Brand),
		ClothingType:    orDefault(answer.ClothingType, defaultClothingType),
		ClothingSubType: strings.TrimSpace(answer.ClothingSubType),
		Gender:          normalizeGender(answer.Gender),
		Grade:           normalizeGrade(answer.Grade),
		GradeReason:     strings.TrimSpace(answer.GradeReason),
		Pattern:         orDefault(answer.Pattern, defaultPattern),
		Fabric:          strings.TrimSpace(answer.Fabric),
		Size:            strings.TrimSpace(answer.Size),
		Colors:          cleanList(answer.Colors),
		Confidence:      clampConfidence(int(answer.Confidence)),
	}, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func normalizeGender(g string) string {
	switch g = strings.ToUpper(strings.TrimSpace(g)); g {
	case "MAN", "WOMAN", "UNISEX":
		return g
	case "MEN", "MALE":
		return "MAN"
	case "WOMEN", "FEMALE":
		return "WOMAN"
	}
	return defaultGender
}

// normalizeGrade accepts "S", "s", "S급" or "Grade S" style answers.
func normalizeGrade(g string) string {
	g = strings.ToUpper(strings.TrimSpace(g))
	g = strings.TrimPrefix(g, "GRADE")
	g = strings.TrimSpace(g)
	if g == "" {
		return defaultGrade
	}
	switch g[0] {
	case 'S', 'A', 'B':
		return g[:1]
	}
	return defaultGrade
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
