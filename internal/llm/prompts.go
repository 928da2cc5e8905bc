package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tierkeeper/internal/model"
)

const archiveSystemPrompt = "You are a vintage and archive clothing specialist. Respond only with a single JSON object in the exact format requested."

// visualCues describes what each archive sub-category looks like in a photo.
var visualCues = map[model.Tier]string{
	model.TierMilitaryArchive: "camouflage, olive or khaki drab, epaulettes, velcro, utility pockets, ripstop",
	model.TierWorkwearArchive: "duck canvas, hickory stripe, double knee, triple stitching",
	model.TierOutdoorArchive:  "nylon shell, Gore-Tex, fleece, drawcords, reflective trims",
	model.TierJapaneseArchive: "indigo dye, selvedge, boro or sashiko mending, natural materials",
	model.TierHeritageEurope:  "wool blends, oxford cloth, pique, knitwear, embroidered logos, metal buttons",
	model.TierBritishArchive:  "waxed cotton, Harris tweed, tartan, corduroy, leather patches, velvet collars",
}

func categoryList(categories []model.Tier) string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = `"` + string(c) + `"`
	}
	return strings.Join(names, ", ")
}

func buildBrandPrompt(productName, brand string, categories []model.Tier) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Identify the clothing brand of this second-hand product and decide which archive style it belongs to.\n\n")
	fmt.Fprintf(&sb, "Product name: %s\n", productName)
	if brand != "" {
		fmt.Fprintf(&sb, "Brand as listed: %s\n", brand)
	}
	fmt.Fprintf(&sb, "\nArchive categories: %s, or \"NONE\".\n\n", categoryList(categories))
	sb.WriteString(`Guidance:
- Italian luxury houses belong to "HERITAGE EUROPE".
- Sports brands are "OUTDOOR ARCHIVE" only when the line is technical outerwear, otherwise "NONE".
- Japanese makers of American-style clothing belong to "JAPANESE ARCHIVE".
- If you are unsure, answer "NONE" with confidence 30 or lower.

Respond with JSON only:
{"brand": "", "country": "", "founded": "", "styleLineage": "", "category": "", "confidence": 0, "reason": ""}
`)
	return sb.String()
}

func buildVisualPrompt(productName string, brand model.ArchiveSignal, brandName string, categories []model.Tier) string {
	var sb strings.Builder
	sb.WriteString("Look at the product photo and decide which archive style the garment belongs to.\n\n")
	fmt.Fprintf(&sb, "Product name: %s\n", productName)
	if brandName != "" {
		fmt.Fprintf(&sb, "Brand: %s\n", brandName)
	}
	if brand.Category != "" {
		fmt.Fprintf(&sb, "Brand analysis verdict: %s (confidence %d). Judge the photo on its own merits.\n", brand.Category, brand.Confidence)
	}

	sb.WriteString("\nVisual cues per category:\n")
	for _, c := range categories {
		if cue, ok := visualCues[c]; ok {
			fmt.Fprintf(&sb, "- %s: %s\n", c, cue)
		}
	}
	fmt.Fprintf(&sb, "\nAllowed categories: %s, or \"NONE\".\n\n", categoryList(categories))
	sb.WriteString(`Respond with JSON only:
{"clothingType": "", "fabric": "", "pattern": "", "details": [], "structure": "", "category": "", "confidence": 0, "reason": ""}
`)
	return sb.String()
}

const visionSystemPrompt = "You are a second-hand clothing inspector. Respond only with a single JSON object in the exact format requested."

const visionPrompt = `Inspect the product photos and describe the garment.

Grade the condition:
- "S": like new, no visible wear
- "A": light wear, no defects
- "B": visible wear, fading, stains or repairs

Respond with JSON only:
{"brand": "", "clothingType": "", "clothingSubType": "", "gender": "MAN|WOMAN|UNISEX|UNKNOWN", "grade": "S|A|B", "gradeReason": "", "colors": [], "pattern": "", "fabric": "", "size": "", "confidence": 0}
`
