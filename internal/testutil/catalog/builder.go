// Package catalog seeds test databases with products and tier assignments
// through a fluent builder.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// BaseTime is the registration date of generated products.
var BaseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Store is what Build writes to.
type Store interface {
	service.ProductStore
	service.AssignmentStore
}

// Builder assembles a test catalogue. An empty tier means the product gets
// no assignment and is placed by its lifecycle.
type Builder interface {
	WithProduct(p model.Product, tier model.Tier) Builder
	WithCohort(tier model.Tier, n int, prefix string) Builder
	WithFixture(f Fixture) Builder
	Build(ctx context.Context, store Store) (Catalog, error)
}

// Catalog is what a builder seeded.
type Catalog struct {
	Tiers    map[string]model.Tier
	Products []model.Product
}

// IDsIn returns the ids seeded into tier, sorted.
func (c Catalog) IDsIn(tier model.Tier) []string {
	var ids []string
	for id, t := range c.Tiers {
		if t == tier {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// MustFind returns a seeded product or fails the test.
func (c Catalog) MustFind(t *testing.T, id string) model.Product {
	t.Helper()
	for _, p := range c.Products {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("product %q not in test catalogue", id)
	return model.Product{}
}

// Product returns a product with sensible defaults.
func Product(id, name string, price int64) model.Product {
	return model.Product{
		ID:           id,
		Name:         name,
		Price:        decimal.NewFromInt(price),
		RegisteredAt: BaseTime,
		Stock:        1,
		Status:       "SALE",
	}
}

type entry struct {
	product model.Product
	tier    model.Tier
}

type builder struct {
	t       *testing.T
	index   map[string]int
	entries []entry
}

// NewBuilder creates a builder for t.
func NewBuilder(t *testing.T) Builder {
	t.Helper()
	return &builder{t: t, index: make(map[string]int)}
}

func (b *builder) WithProduct(p model.Product, tier model.Tier) Builder {
	if i, ok := b.index[p.ID]; ok {
		b.entries[i] = entry{product: p, tier: tier}
		return b
	}
	b.index[p.ID] = len(b.entries)
	b.entries = append(b.entries, entry{product: p, tier: tier})
	return b
}

// WithCohort adds n products named prefix-000.. with rising prices.
func (b *builder) WithCohort(tier model.Tier, n int, prefix string) Builder {
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%03d", prefix, i)
		b.WithProduct(Product(id, fmt.Sprintf("Item %s", id), int64(1000*(i+1))), tier)
	}
	return b
}

func (b *builder) WithFixture(f Fixture) Builder {
	return f.Apply(b)
}

func (b *builder) Build(ctx context.Context, store Store) (Catalog, error) {
	cat := Catalog{Tiers: make(map[string]model.Tier)}
	if len(b.entries) == 0 {
		return cat, nil
	}

	var assignments []model.TierAssignment
	for _, e := range b.entries {
		cat.Products = append(cat.Products, e.product)
		if e.tier == "" {
			continue
		}
		cat.Tiers[e.product.ID] = e.tier
		assignments = append(assignments, model.TierAssignment{
			ProductID: e.product.ID,
			Tier:      e.tier,
			Reason:    "seed",
			UpdatedAt: BaseTime,
		})
	}

	if err := store.SaveProducts(ctx, cat.Products); err != nil {
		return Catalog{}, fmt.Errorf("failed to seed products: %w", err)
	}
	if len(assignments) > 0 {
		if err := store.BulkUpsertAssignments(ctx, assignments); err != nil {
			return Catalog{}, fmt.Errorf("failed to seed assignments: %w", err)
		}
	}
	return cat, nil
}
