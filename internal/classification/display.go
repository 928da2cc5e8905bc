package classification

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
)

// DisplayCategories maps tiers to marketplace display category ids and back.
type DisplayCategories struct {
	byTier map[model.Tier]string
	byID   map[string]model.Tier
}

// DefaultDisplayCategories returns the storefront's stock display ids.
func DefaultDisplayCategories() map[string]string {
	return map[string]string{
		string(model.TierCurated):   "4efdba18ec5c4bdfb72d25bf0b8ddcca",
		string(model.TierArchive):   "14ba5af8d3c64ec592ec94bbc9aad6de",
		string(model.TierClearance): "09f56197c74b4969ac44a18a7b5f8fb1",
	}
}

// NewDisplayCategories builds the mapping from tier name to display id.
// Every key must be a known tier and every id must be unique.
func NewDisplayCategories(tierToID map[string]string) (*DisplayCategories, error) {
	d := &DisplayCategories{
		byTier: make(map[model.Tier]string, len(tierToID)),
		byID:   make(map[string]model.Tier, len(tierToID)),
	}

	for name, id := range tierToID {
		tier, err := model.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("%w: display category: %w", common.ErrInvalidConfig, err)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if other, dup := d.byID[id]; dup {
			return nil, fmt.Errorf("%w: display id %s used by both %s and %s", common.ErrInvalidConfig, id, other, tier)
		}
		d.byTier[tier] = id
		d.byID[id] = tier
	}

	return d, nil
}

// IDFor returns the display id for tier.
func (d *DisplayCategories) IDFor(tier model.Tier) (string, bool) {
	id, ok := d.byTier[tier]
	return id, ok
}

// TierFor resolves a product's display ids to a tier. A specific tier wins
// over the unresolved ARCHIVE root when a product is listed under both.
func (d *DisplayCategories) TierFor(ids []string) (model.Tier, bool) {
	var fallback model.Tier
	for _, id := range ids {
		tier, ok := d.byID[strings.TrimSpace(id)]
		if !ok {
			continue
		}
		if tier != model.TierArchive {
			return tier, true
		}
		fallback = tier
	}
	return fallback, fallback != ""
}
