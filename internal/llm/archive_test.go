package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveClassifier_Classify(t *testing.T) {
	srv := newImageServer(t)

	tests := []struct {
		name           string
		product        model.Product
		brand          func(Request) (string, error)
		visual         func(Request) (string, error)
		wantCategory   model.Tier
		wantConfidence int
		wantKind       ErrorKind
		wantReasonPart string
	}{
		{
			name:           "brand and keyword agree without image",
			product:        model.Product{ID: "p1", Name: "Alpha Industries MA-1 Flight Jacket"},
			brand:          reply(`{"brand":"Alpha Industries","category":"MILITARY ARCHIVE","confidence":80,"reason":"US flight jackets"}`),
			wantCategory:   model.TierMilitaryArchive,
			wantConfidence: 74,
			wantReasonPart: "brand 80: US flight jackets",
		},
		{
			name:           "visual outweighs brand alias",
			product:        model.Product{ID: "p2", Name: "Barbour Bedale Jacket", ImageURL: srv.URL + "/bedale.jpg"},
			brand:          reply("```json\n{\"brand\":\"Barbour\",\"category\":\"heritage\",\"confidence\":60}\n```"),
			visual:         reply(`{"clothingType":"jacket","details":["waxed"],"category":"BRITISH ARCHIVE","confidence":90,"reason":"waxed cotton shell"}`),
			wantCategory:   model.TierBritishArchive,
			wantConfidence: 52,
			wantReasonPart: "visual 90: waxed cotton shell",
		},
		{
			name:           "brand failure falls back to visual",
			product:        model.Product{ID: "p3", Name: "Field Jacket", ImageURL: srv.URL + "/field.jpg"},
			brand:          fail(KindTimeout),
			visual:         reply(`{"details":["camo"],"category":"MILITARY","confidence":90}`),
			wantCategory:   model.TierMilitaryArchive,
			wantConfidence: 52,
		},
		{
			name:     "weak evidence",
			product:  model.Product{ID: "p4", Name: "Plain Sweater"},
			brand:    reply(`{"category":"NONE","confidence":20}`),
			wantKind: KindInsufficientEvidence,
		},
		{
			name:     "unrecognized answer",
			product:  model.Product{ID: "p5", Name: "Plain Sweater"},
			brand:    reply(`{"category":"SPACE ARCHIVE","confidence":90}`),
			wantKind: KindUnrecognized,
		},
		{
			name:     "malformed answer",
			product:  model.Product{ID: "p6", Name: "Plain Sweater"},
			brand:    reply("sorry, no idea"),
			wantKind: KindMalformed,
		},
		{
			name:     "both phases fail",
			product:  model.Product{ID: "p7", Name: "Plain Sweater", ImageURL: srv.URL + "/x.jpg"},
			brand:    fail(KindNetwork),
			visual:   fail(KindRateLimit),
			wantKind: KindRateLimit,
		},
		{
			name:           "missing image is not fatal",
			product:        model.Product{ID: "p8", Name: "Alpha Industries MA-1", ImageURL: srv.URL + "/missing.jpg"},
			brand:          reply(`{"category":"MILITARY ARCHIVE","confidence":80}`),
			wantCategory:   model.TierMilitaryArchive,
			wantConfidence: 74,
		},
		{
			name:     "invalid product",
			product:  model.Product{ID: "p9"},
			wantKind: KindInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{brand: tt.brand, visual: tt.visual}
			classifier := NewArchiveClassifier(client, newTestFetcher(t), classification.DefaultTables(), nil)

			result, err := classifier.Classify(context.Background(), tt.product)
			if tt.wantKind != "" {
				require.Error(t, err)
				var pe *ProviderError
				require.True(t, errors.As(err, &pe), "expected ProviderError, got %T", err)
				assert.Equal(t, tt.wantKind, pe.Kind)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, result.Category)
			assert.Equal(t, tt.wantConfidence, result.Confidence)
			if tt.wantReasonPart != "" {
				assert.Contains(t, result.Reason, tt.wantReasonPart)
			}
		})
	}
}

func TestArchiveClassifier_GroundedRetry(t *testing.T) {
	client := &scriptedClient{
		brand: func(req Request) (string, error) {
			if req.Grounded {
				return "", newProviderError(KindProvider, "search unavailable", nil)
			}
			return `{"brand":"Carhartt","category":"WORKWEAR ARCHIVE","confidence":90}`, nil
		},
	}
	classifier := NewArchiveClassifier(client, nil, classification.DefaultTables(), nil)

	result, err := classifier.Classify(context.Background(), model.Product{ID: "c1", Name: "칼하트 디트로이트 자켓"})
	require.NoError(t, err)
	assert.Equal(t, model.TierWorkwearArchive, result.Category)
	assert.Equal(t, "Carhartt", result.Brand)

	calls := client.requests()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Grounded)
	assert.False(t, calls[1].Grounded)
	assert.True(t, calls[1].JSON)
}

func TestArchiveClassifier_BrandFromName(t *testing.T) {
	client := &scriptedClient{brand: reply(`{"category":"OUTDOOR ARCHIVE","confidence":100}`)}
	classifier := NewArchiveClassifier(client, nil, classification.DefaultTables(), nil)

	result, err := classifier.Classify(context.Background(), model.Product{ID: "o1", Name: "PATAGONIA 레트로 플리스"})
	require.NoError(t, err)
	assert.Equal(t, "PATAGONIA", result.Brand)
	assert.Contains(t, client.requests()[0].Prompt, "Brand as listed: PATAGONIA")
}

func TestNormalizeCategory(t *testing.T) {
	cats := classification.DefaultTables().AICategories()

	tests := []struct {
		in      string
		want    model.Tier
		wantErr bool
	}{
		{in: "MILITARY ARCHIVE", want: model.TierMilitaryArchive},
		{in: "  military_archive ", want: model.TierMilitaryArchive},
		{in: "Japanese", want: model.TierJapaneseArchive},
		{in: "heritage", want: model.TierHeritageEurope},
		{in: "UK", want: model.TierBritishArchive},
		{in: "NONE"},
		{in: ""},
		{in: "UNISEX ARCHIVE", wantErr: true},
		{in: "CLEARANCE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeCategory(tt.in, cats)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFuseSignals_TieUsesTableOrder(t *testing.T) {
	cats := classification.DefaultTables().AICategories()
	brand := model.ArchiveSignal{Source: SourceBrand, Category: model.TierOutdoorArchive, Confidence: 90}
	visual := model.ArchiveSignal{Source: SourceVisual, Category: model.TierMilitaryArchive, Confidence: 90}

	result, ok := fuseSignals(cats, brand, visual, classification.KeywordMatch{}, true)
	assert.True(t, ok)
	assert.Equal(t, model.TierMilitaryArchive, result.Category)
	assert.Equal(t, 36, result.Confidence)

	result, ok = fuseSignals(cats, model.ArchiveSignal{}, model.ArchiveSignal{}, classification.KeywordMatch{}, false)
	assert.False(t, ok)
	assert.Equal(t, 0, result.Confidence)
}

func TestFuseSignals_CapsAt100(t *testing.T) {
	cats := classification.DefaultTables().AICategories()
	brand := model.ArchiveSignal{Category: model.TierWorkwearArchive, Confidence: 100}
	kw := classification.KeywordMatch{Category: model.TierWorkwearArchive, Score: 100, TextMatches: []string{"Carhartt"}}

	result, ok := fuseSignals(cats, brand, model.ArchiveSignal{}, kw, false)
	assert.True(t, ok)
	assert.Equal(t, 100, result.Confidence)
	assert.Contains(t, result.Reason, " | keyword 100: Carhartt")
}
