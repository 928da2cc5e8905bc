// Package lifecycle derives a product's lifecycle stage from its age.
package lifecycle

import (
	"fmt"
	"math"
	"time"

	"github.com/Veraticus/tierkeeper/internal/model"

	"github.com/shopspring/decimal"
)

// Settings holds the day thresholds that separate lifecycle stages.
// A product is NEW up to NewMaxDays, CURATED up to CuratedMaxDays,
// ARCHIVE up to ArchiveMaxDays and CLEARANCE after that.
type Settings struct {
	NewMaxDays     int `mapstructure:"new_max_days"`
	CuratedMaxDays int `mapstructure:"curated_max_days"`
	ArchiveMaxDays int `mapstructure:"archive_max_days"`
}

// DefaultSettings returns the stock 30/60/150 day thresholds.
func DefaultSettings() Settings {
	return Settings{
		NewMaxDays:     30,
		CuratedMaxDays: 60,
		ArchiveMaxDays: 150,
	}
}

// Valid reports whether thresholds are positive and strictly increasing.
func (s Settings) Valid() bool {
	return s.NewMaxDays > 0 &&
		s.CuratedMaxDays > s.NewMaxDays &&
		s.ArchiveMaxDays > s.CuratedMaxDays
}

// Result is the lifecycle position of a product at a point in time.
type Result struct {
	Anchor       time.Time
	Stage        model.Tier
	Reason       string
	DaysSince    int
	DiscountRate int // percent
}

// DiscountedPrice applies the stage discount to price, rounded to whole units.
func (r Result) DiscountedPrice(price decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(int64(100 - r.DiscountRate)).Div(decimal.NewFromInt(100))
	return price.Mul(factor).Round(0)
}

// discountRates is percent off by stage.
var discountRates = map[model.Tier]int{
	model.TierNew:       0,
	model.TierCurated:   10,
	model.TierArchive:   30,
	model.TierClearance: 70,
}

// DiscountRate returns the fixed discount for a stage.
func DiscountRate(stage model.Tier) int {
	return discountRates[stage.Group()]
}

// Anchor picks the date a product's age is measured from.
func Anchor(registeredAt time.Time, override *time.Time) time.Time {
	if override != nil && !override.IsZero() {
		return *override
	}
	return registeredAt
}

// DaysSince counts started days between anchor and now. It is never negative.
func DaysSince(anchor, now time.Time) int {
	if anchor.IsZero() || !now.After(anchor) {
		return 0
	}
	return int(math.Ceil(now.Sub(anchor).Hours() / 24))
}

// Compute places a product whose age is measured from anchor. Malformed
// settings fall back to DefaultSettings.
func Compute(anchor time.Time, settings Settings, now time.Time) Result {
	if !settings.Valid() {
		settings = DefaultSettings()
	}

	if anchor.IsZero() {
		return Result{
			Stage:        model.TierNew,
			DaysSince:    0,
			DiscountRate: DiscountRate(model.TierNew),
			Reason:       "no anchor date",
		}
	}

	days := DaysSince(anchor, now)

	var stage model.Tier
	var reason string
	switch {
	case days <= settings.NewMaxDays:
		stage = model.TierNew
		reason = fmt.Sprintf("%d days old (0-%d: NEW)", days, settings.NewMaxDays)
	case days <= settings.CuratedMaxDays:
		stage = model.TierCurated
		reason = fmt.Sprintf("%d days old (%d-%d: CURATED)", days, settings.NewMaxDays+1, settings.CuratedMaxDays)
	case days <= settings.ArchiveMaxDays:
		stage = model.TierArchive
		reason = fmt.Sprintf("%d days old (%d-%d: ARCHIVE)", days, settings.CuratedMaxDays+1, settings.ArchiveMaxDays)
	default:
		stage = model.TierClearance
		reason = fmt.Sprintf("%d days old (over %d: CLEARANCE)", days, settings.ArchiveMaxDays)
	}

	return Result{
		Anchor:       anchor,
		Stage:        stage,
		DaysSince:    days,
		DiscountRate: DiscountRate(stage),
		Reason:       reason,
	}
}

// ForProduct computes the lifecycle of p, honoring an override anchor on its assignment.
func ForProduct(p model.Product, assignment *model.TierAssignment, settings Settings, now time.Time) Result {
	var override *time.Time
	if assignment != nil {
		override = assignment.OverrideDate
	}
	return Compute(Anchor(p.RegisteredAt, override), settings, now)
}
