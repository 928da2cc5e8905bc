package classification

import (
	"testing"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTables(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TableConfig
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  DefaultTableConfig(),
		},
		{
			name: "negative brand score",
			cfg: TableConfig{
				BrandScores:  map[string]int{"ACME": -1},
				AICategories: []model.Tier{model.TierMilitaryArchive},
			},
			wantErr: true,
		},
		{
			name: "keyword set for stage tier",
			cfg: TableConfig{
				Keywords:     []KeywordSet{{Category: model.TierCurated, Keywords: []string{"x"}}},
				AICategories: []model.Tier{model.TierMilitaryArchive},
			},
			wantErr: true,
		},
		{
			name:    "no AI categories",
			cfg:     TableConfig{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables, err := NewTables(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tables)
		})
	}
}

func TestTables_BrandScore(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, 35, tables.BrandScore("Stone Island", ""))
	assert.Equal(t, 26, tables.BrandScore(" carhartt ", "LUXURY"))
	assert.Equal(t, 17, tables.BrandScore("UNIQLO", ""))
	assert.Equal(t, 30, tables.BrandScore("UNKNOWN LABEL", "luxury"))
	assert.Equal(t, 4, tables.BrandScore("UNKNOWN LABEL", "BASIC"))
	assert.Equal(t, 0, tables.BrandScore("UNKNOWN LABEL", ""))
}

func TestTables_GradeScore(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, 25, tables.GradeScore("V"))
	assert.Equal(t, 25, tables.GradeScore("V급"))
	assert.Equal(t, 19, tables.GradeScore("s"))
	assert.Equal(t, 12, tables.GradeScore("A급"))
	assert.Equal(t, 5, tables.GradeScore("B"))
	assert.Equal(t, 0, tables.GradeScore("C"))
}

func TestTables_AICategoriesIsCopy(t *testing.T) {
	tables := DefaultTables()
	cats := tables.AICategories()
	require.Len(t, cats, 6)
	assert.NotContains(t, cats, model.TierUnisexArchive)

	cats[0] = model.TierKids
	assert.Equal(t, model.TierMilitaryArchive, tables.AICategories()[0])
}

func TestMatchKeywords(t *testing.T) {
	tables := DefaultTables()

	tests := []struct {
		name         string
		product      string
		labels       []string
		wantCategory model.Tier
		wantScore    int
	}{
		{
			name:         "military text",
			product:      "Alpha Industries MA-1 Flight Jacket",
			wantCategory: model.TierMilitaryArchive,
			wantScore:    40,
		},
		{
			name:         "text score caps at 60",
			product:      "US Army Navy Military Combat Cargo Parka",
			wantCategory: model.TierMilitaryArchive,
			wantScore:    60,
		},
		{
			name:         "vision labels add points",
			product:      "Barbour Jacket",
			labels:       []string{"waxed", "tweed"},
			wantCategory: model.TierBritishArchive,
			wantScore:    40,
		},
		{
			name:         "korean keyword",
			product:      "칼하트 디트로이트 자켓",
			wantCategory: model.TierWorkwearArchive,
			wantScore:    20,
		},
		{
			name:    "no match",
			product: "Plain Sweater",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tables.MatchKeywords(tt.product, tt.labels)
			assert.Equal(t, tt.wantCategory, m.Category)
			assert.Equal(t, tt.wantScore, m.Score)
			assert.Equal(t, tt.wantScore > 0, m.Matched())
		})
	}
}

func TestMatchKeywords_TieKeepsTableOrder(t *testing.T) {
	tables, err := NewTables(TableConfig{
		Keywords: []KeywordSet{
			{Category: model.TierOutdoorArchive, Keywords: []string{"jacket"}},
			{Category: model.TierMilitaryArchive, Keywords: []string{"jacket"}},
		},
		AICategories: []model.Tier{model.TierMilitaryArchive},
	})
	require.NoError(t, err)

	m := tables.MatchKeywords("Green Jacket", nil)
	assert.Equal(t, model.TierOutdoorArchive, m.Category)
	assert.Equal(t, []string{"jacket"}, m.TextMatches)
}

func TestExtractBrand(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"latin before hangul", "STONE ISLAND 스톤아일랜드 자켓", "STONE ISLAND"},
		{"punctuation", "ARC'TERYX 아크테릭스 베타", "ARC'TERYX"},
		{"first token fallback", "Patagonia Retro X Fleece", "Patagonia"},
		{"hangul only", "빈티지 자켓", "빈티지"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBrand(tt.in))
		})
	}
}

func TestDisplayCategories(t *testing.T) {
	d, err := NewDisplayCategories(map[string]string{
		"curated":          "id-curated",
		"ARCHIVE":          "id-archive",
		"military archive": "id-military",
	})
	require.NoError(t, err)

	id, ok := d.IDFor(model.TierMilitaryArchive)
	require.True(t, ok)
	assert.Equal(t, "id-military", id)

	tier, ok := d.TierFor([]string{"id-archive", "id-military"})
	require.True(t, ok)
	assert.Equal(t, model.TierMilitaryArchive, tier, "specific tier beats the archive root")

	tier, ok = d.TierFor([]string{"unknown", "id-archive"})
	require.True(t, ok)
	assert.Equal(t, model.TierArchive, tier)

	_, ok = d.TierFor([]string{"unknown"})
	assert.False(t, ok)
}

func TestNewDisplayCategories_Invalid(t *testing.T) {
	_, err := NewDisplayCategories(map[string]string{"nonsense": "id"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = NewDisplayCategories(map[string]string{"NEW": "same", "CURATED": "same"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
