package model

import "time"

// TierAssignment is the persisted override record for a product. There is at
// most one per product; writes are upserts keyed by ProductID.
type TierAssignment struct {
	UpdatedAt    time.Time
	OverrideDate *time.Time
	ProductID    string
	Tier         Tier
	Reason       string
	Confidence   int
}

// HasArchiveSub reports whether the assignment already holds a resolved archive sub-category.
func (a *TierAssignment) HasArchiveSub() bool {
	return a != nil && a.Tier.IsArchiveSub()
}

// TierMove records a product moving between tiers.
type TierMove struct {
	MovedAt   time.Time
	RunID     string
	ProductID string
	From      Tier
	To        Tier
	Reason    string
	ID        int64
}

// Route returns the "from → to" label used to group moves.
func (m TierMove) Route() string {
	return string(m.From) + " → " + string(m.To)
}

// Move reasons.
const (
	ReasonCapacity       = "capacity"
	ReasonClassified     = "classified"
	ReasonFallback       = "fallback"
	ReasonManualOverride = "manual"
)
