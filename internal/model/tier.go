// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strings"
)

// Tier is a display tier a product can occupy.
type Tier string

// Lifecycle tiers in display order.
const (
	TierNew       Tier = "NEW"
	TierCurated   Tier = "CURATED"
	TierArchive   Tier = "ARCHIVE"
	TierClearance Tier = "CLEARANCE"

	TierClearanceKeep    Tier = "CLEARANCE_KEEP"
	TierClearanceDispose Tier = "CLEARANCE_DISPOSE"

	// TierKids is never rebalanced.
	TierKids Tier = "KIDS"
)

// Archive sub-categories.
const (
	TierMilitaryArchive Tier = "MILITARY ARCHIVE"
	TierWorkwearArchive Tier = "WORKWEAR ARCHIVE"
	TierOutdoorArchive  Tier = "OUTDOOR ARCHIVE"
	TierJapaneseArchive Tier = "JAPANESE ARCHIVE"
	TierHeritageEurope  Tier = "HERITAGE EUROPE"
	TierBritishArchive  Tier = "BRITISH ARCHIVE"
	TierUnisexArchive   Tier = "UNISEX ARCHIVE"
)

// ArchiveSubTiers lists every archive sub-category in cascade order.
func ArchiveSubTiers() []Tier {
	return []Tier{
		TierMilitaryArchive,
		TierWorkwearArchive,
		TierOutdoorArchive,
		TierJapaneseArchive,
		TierHeritageEurope,
		TierBritishArchive,
		TierUnisexArchive,
	}
}

// ArchiveTiers returns the unresolved ARCHIVE bucket followed by every sub-category.
func ArchiveTiers() []Tier {
	return append([]Tier{TierArchive}, ArchiveSubTiers()...)
}

// AllTiers returns every known tier.
func AllTiers() []Tier {
	tiers := []Tier{TierNew, TierCurated}
	tiers = append(tiers, ArchiveTiers()...)
	return append(tiers, TierClearance, TierClearanceKeep, TierClearanceDispose, TierKids)
}

// IsArchiveSub reports whether t is a resolved archive sub-category.
func (t Tier) IsArchiveSub() bool {
	for _, sub := range ArchiveSubTiers() {
		if t == sub {
			return true
		}
	}
	return false
}

// IsArchive reports whether t is ARCHIVE or one of its sub-categories.
func (t Tier) IsArchive() bool {
	return t == TierArchive || t.IsArchiveSub()
}

// IsClearance reports whether t is CLEARANCE or one of its variants.
func (t Tier) IsClearance() bool {
	return t == TierClearance || t == TierClearanceKeep || t == TierClearanceDispose
}

// Group collapses sub-categories and variants onto their parent stage.
func (t Tier) Group() Tier {
	switch {
	case t.IsArchive():
		return TierArchive
	case t.IsClearance():
		return TierClearance
	default:
		return t
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	for _, known := range AllTiers() {
		if t == known {
			return true
		}
	}
	return false
}

func (t Tier) String() string {
	return string(t)
}

// ParseTier normalizes s and returns the matching tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}
