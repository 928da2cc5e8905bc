package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/tierkeeper/internal/lifecycle"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// ResolveTier places a product. A stored assignment wins; otherwise the
// lifecycle stage decides. DaysSince always comes from the lifecycle, with
// the assignment's override anchor taking precedence over registration.
func ResolveTier(p model.Product, assignment *model.TierAssignment, settings lifecycle.Settings, now time.Time) model.PlacedProduct {
	life := lifecycle.ForProduct(p, assignment, settings, now)

	tier := life.Stage
	if assignment != nil && assignment.Tier.Valid() {
		tier = assignment.Tier
	}

	return model.PlacedProduct{
		Product:   p,
		Tier:      tier,
		DaysSince: life.DaysSince,
	}
}

type placementStore interface {
	service.ProductStore
	service.AssignmentStore
}

// LoadPlacements resolves the tier of every stored product.
func LoadPlacements(ctx context.Context, store placementStore, settings lifecycle.Settings, now time.Time) ([]model.PlacedProduct, map[string]model.TierAssignment, error) {
	products, err := store.GetProducts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load products: %w", err)
	}

	ids := productIDs(products)
	assignments, err := store.GetAssignments(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	placed := make([]model.PlacedProduct, len(products))
	for i, p := range products {
		var current *model.TierAssignment
		if a, ok := assignments[p.ID]; ok {
			current = &a
		}
		placed[i] = ResolveTier(p, current, settings, now)
	}
	return placed, assignments, nil
}
