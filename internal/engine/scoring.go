package engine

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/model"
)

// Score weights.
const (
	priceRankMax      = 30
	priceRankSingle   = 15
	freshnessMax      = 10
	freshnessHorizonD = 180
)

// ScoreBreakdown is the keep score of a product within its cohort.
type ScoreBreakdown struct {
	Brand     int `json:"brand"`
	PriceRank int `json:"price_rank"`
	Grade     int `json:"grade"`
	Freshness int `json:"freshness"`
}

// Total is the sum of the components.
func (s ScoreBreakdown) Total() int {
	return s.Brand + s.PriceRank + s.Grade + s.Freshness
}

// ScoredProduct is a product ranked within a tier cohort.
type ScoredProduct struct {
	Placed model.PlacedProduct
	Score  ScoreBreakdown
}

// Scorer computes keep scores from injected brand and grade tables.
type Scorer struct {
	tables *classification.Tables
}

// NewScorer creates a scorer.
func NewScorer(tables *classification.Tables) *Scorer {
	return &Scorer{tables: tables}
}

// ScoreCohort scores every member of cohort against the cohort itself.
func (s *Scorer) ScoreCohort(cohort []model.PlacedProduct) []ScoredProduct {
	prices := make([]decimal.Decimal, len(cohort))
	for i, p := range cohort {
		prices[i] = p.Product.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	scored := make([]ScoredProduct, len(cohort))
	for i, p := range cohort {
		scored[i] = ScoredProduct{
			Placed: p,
			Score: ScoreBreakdown{
				Brand:     s.brandScore(p.Product),
				PriceRank: priceRankScore(p.Product.Price, prices),
				Grade:     s.tables.GradeScore(p.Product.Grade),
				Freshness: freshnessScore(p.DaysSince),
			},
		}
	}
	return scored
}

func (s *Scorer) brandScore(p model.Product) int {
	brand := p.Brand
	if brand == "" {
		brand = classification.ExtractBrand(p.Name)
	}
	return s.tables.BrandScore(brand, p.BrandTier)
}

// priceRankScore scales the index of the first equal price in the ascending
// cohort prices onto 0..30. A single-member cohort scores 15.
func priceRankScore(price decimal.Decimal, sorted []decimal.Decimal) int {
	n := len(sorted)
	if n <= 1 {
		return priceRankSingle
	}
	rank := sort.Search(n, func(i int) bool { return sorted[i].GreaterThanOrEqual(price) })
	return roundHalfUp(float64(rank) / float64(n-1) * priceRankMax)
}

// freshnessScore decays linearly from 10 to 0 over 180 days.
func freshnessScore(daysSince int) int {
	days := min(max(daysSince, 0), freshnessHorizonD)
	return max(0, roundHalfUp((1-float64(days)/freshnessHorizonD)*freshnessMax))
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// rankForEviction orders scored products lowest score first, breaking ties by product id.
func rankForEviction(scored []ScoredProduct) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i].Score.Total(), scored[j].Score.Total()
		if a != b {
			return a < b
		}
		return scored[i].Placed.Product.ID < scored[j].Placed.Product.ID
	})
}
