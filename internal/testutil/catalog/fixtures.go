package catalog

import "github.com/Veraticus/tierkeeper/internal/model"

// Fixture is a reusable catalogue shape.
type Fixture interface {
	Name() string
	Apply(b Builder) Builder
}

type fixture struct {
	apply func(Builder) Builder
	name  string
}

func (f *fixture) Name() string            { return f.name }
func (f *fixture) Apply(b Builder) Builder { return f.apply(b) }

// Predefined fixtures.
var (
	// FixtureOverfullNew is 250 NEW products against the default capacity of 200.
	FixtureOverfullNew Fixture = &fixture{
		name: "OverfullNew",
		apply: func(b Builder) Builder {
			return b.WithCohort(model.TierNew, 250, "new")
		},
	}

	// FixtureArchiveBacklog mixes unresolved ARCHIVE items with resolved
	// sub-categories, named so the keyword table can classify them.
	FixtureArchiveBacklog Fixture = &fixture{
		name: "ArchiveBacklog",
		apply: func(b Builder) Builder {
			return b.
				WithProduct(Product("arc-001", "Alpha Industries MA-1 Flight Jacket", 89000), model.TierArchive).
				WithProduct(Product("arc-002", "Carhartt Double Knee Pants", 59000), model.TierArchive).
				WithProduct(Product("arc-003", "Barbour Bedale Waxed Jacket", 129000), model.TierArchive).
				WithProduct(Product("arc-004", "Plain Sweater", 19000), model.TierArchive).
				WithProduct(Product("arc-005", "Patagonia Retro X Fleece", 99000), model.TierOutdoorArchive).
				WithProduct(Product("arc-006", "Kapital Sashiko Jacket", 159000), model.TierJapaneseArchive)
		},
	}
)
