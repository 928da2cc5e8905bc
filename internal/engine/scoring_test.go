package engine

import (
	"testing"

	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimals(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func TestPriceRankScore(t *testing.T) {
	sorted := decimals(100, 200, 200, 300)

	tests := []struct {
		name  string
		price int64
		want  int
	}{
		{name: "cheapest", price: 100, want: 0},
		{name: "ties share the first index", price: 200, want: 10},
		{name: "most expensive", price: 300, want: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, priceRankScore(decimal.NewFromInt(tt.price), sorted))
		})
	}

	assert.Equal(t, 15, priceRankScore(decimal.NewFromInt(5), decimals(5)))
	assert.Equal(t, 15, priceRankScore(decimal.NewFromInt(5), nil))
	assert.Equal(t, 15, priceRankScore(decimal.NewFromInt(20), decimals(10, 20, 30)))
}

func TestFreshnessScore(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{days: -3, want: 10},
		{days: 0, want: 10},
		{days: 9, want: 10},
		{days: 27, want: 9},
		{days: 90, want: 5},
		{days: 179, want: 0},
		{days: 180, want: 0},
		{days: 400, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, freshnessScore(tt.days), "days=%d", tt.days)
	}
}

func TestScorer_ScoreCohort(t *testing.T) {
	scorer := NewScorer(defaultTables())

	cohort := []model.PlacedProduct{
		{Product: model.Product{ID: "a", Name: "x", Brand: "Barbour", Grade: "S", Price: decimal.NewFromInt(300)}, DaysSince: 0},
		{Product: model.Product{ID: "b", Name: "x", Brand: "Nobody", BrandTier: "premium", Grade: "B급", Price: decimal.NewFromInt(100)}, DaysSince: 90},
		{Product: model.Product{ID: "c", Name: "CARHARTT 칼하트 자켓", Price: decimal.NewFromInt(200)}, DaysSince: 200},
	}

	scored := scorer.ScoreCohort(cohort)
	require.Len(t, scored, 3)

	assert.Equal(t, ScoreBreakdown{Brand: 35, PriceRank: 30, Grade: 19, Freshness: 10}, scored[0].Score)
	assert.Equal(t, ScoreBreakdown{Brand: 20, PriceRank: 0, Grade: 5, Freshness: 5}, scored[1].Score)
	assert.Equal(t, ScoreBreakdown{Brand: 26, PriceRank: 15, Grade: 0, Freshness: 0}, scored[2].Score)
	assert.Equal(t, 94, scored[0].Score.Total())
}

func TestRankForEviction(t *testing.T) {
	mk := func(id string, total int) ScoredProduct {
		return ScoredProduct{
			Placed: model.PlacedProduct{Product: model.Product{ID: id}},
			Score:  ScoreBreakdown{Brand: total},
		}
	}
	scored := []ScoredProduct{mk("d", 50), mk("b", 10), mk("c", 10), mk("a", 70)}
	rankForEviction(scored)

	var ids []string
	for _, s := range scored {
		ids = append(ids, s.Placed.Product.ID)
	}
	assert.Equal(t, []string{"b", "c", "d", "a"}, ids)
}
