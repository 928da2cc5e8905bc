package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testProduct(id string) model.Product {
	return model.Product{
		ID:             id,
		Name:           "STONE ISLAND 스톤아일랜드 자켓 " + id,
		Price:          decimal.NewFromInt(59000),
		ImageURL:       "https://img.example/" + id + ".jpg",
		ExtraImageURLs: []string{"https://img.example/" + id + "-2.jpg"},
		DisplayIDs:     []string{"display-1"},
		RegisteredAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Brand:          "STONE ISLAND",
		BrandTier:      "PREMIUM",
		Grade:          "S",
		Status:         "SALE",
		Stock:          1,
	}
}

func TestSQLiteStorage_MigrateIsIdempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestSQLiteStorage_Products(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProducts(ctx, []model.Product{testProduct("p2"), testProduct("p1")}))

	got, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	want := testProduct("p1")
	assert.Equal(t, want.Name, got.Name)
	assert.True(t, want.Price.Equal(got.Price))
	assert.Equal(t, want.ExtraImageURLs, got.ExtraImageURLs)
	assert.Equal(t, want.DisplayIDs, got.DisplayIDs)
	assert.True(t, want.RegisteredAt.Equal(got.RegisteredAt))
	assert.Equal(t, "S", got.Grade)

	updated := testProduct("p1")
	updated.Price = decimal.RequireFromString("41300.50")
	updated.ExtraImageURLs = nil
	require.NoError(t, store.SaveProducts(ctx, []model.Product{updated}))

	got, err = store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "41300.5", got.Price.String())
	assert.Empty(t, got.ExtraImageURLs)

	all, err := store.GetProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0].ID)

	some, err := store.GetProductsByIDs(ctx, []string{"p2", "missing"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "p2", some[0].ID)

	_, err = store.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_SaveProductsValidation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	bad := testProduct("p1")
	bad.Name = " "
	assert.ErrorIs(t, store.SaveProducts(ctx, []model.Product{bad}), ErrInvalidProduct)

	bad = testProduct("p1")
	bad.Price = decimal.NewFromInt(-1)
	assert.ErrorIs(t, store.SaveProducts(ctx, []model.Product{bad}), ErrInvalidProduct)
}

func TestSQLiteStorage_UpsertAssignment(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	override := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertAssignment(ctx, model.TierAssignment{
		ProductID:    "p1",
		Tier:         model.TierCurated,
		Reason:       model.ReasonManualOverride,
		OverrideDate: &override,
	}))

	require.NoError(t, store.UpsertAssignment(ctx, model.TierAssignment{
		ProductID:  "p1",
		Tier:       model.TierMilitaryArchive,
		Reason:     model.ReasonClassified,
		Confidence: 72,
	}))

	got, err := store.GetAssignment(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.TierMilitaryArchive, got.Tier)
	assert.Equal(t, 72, got.Confidence)
	require.NotNil(t, got.OverrideDate, "a nil override keeps the stored one")
	assert.True(t, override.Equal(*got.OverrideDate))
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = store.GetAssignment(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_UpsertAssignmentValidation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name string
		a    model.TierAssignment
	}{
		{"missing id", model.TierAssignment{Tier: model.TierNew}},
		{"unknown tier", model.TierAssignment{ProductID: "p1", Tier: "SALE"}},
		{"confidence too high", model.TierAssignment{ProductID: "p1", Tier: model.TierNew, Confidence: 101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.UpsertAssignment(ctx, tt.a), ErrInvalidAssignment)
		})
	}
}

func TestSQLiteStorage_BulkUpsertAndQuery(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	var assignments []model.TierAssignment
	for i := 0; i < 120; i++ {
		tier := model.TierArchive
		if i%3 == 0 {
			tier = model.TierMilitaryArchive
		}
		assignments = append(assignments, model.TierAssignment{
			ProductID: fmt.Sprintf("p%03d", i),
			Tier:      tier,
		})
	}
	require.NoError(t, store.BulkUpsertAssignments(ctx, assignments))

	byID, err := store.GetAssignments(ctx, []string{"p000", "p001", "nope"})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, model.TierMilitaryArchive, byID["p000"].Tier)
	assert.Equal(t, model.TierArchive, byID["p001"].Tier)

	military, err := store.QueryByTier(ctx, model.TierMilitaryArchive)
	require.NoError(t, err)
	assert.Len(t, military, 40)

	page, err := store.QueryByTiers(ctx, model.ArchiveTiers(), service.Page{Offset: 100, Limit: 50})
	require.NoError(t, err)
	require.Len(t, page, 20)
	assert.Equal(t, "p100", page[0].ProductID)
	assert.Equal(t, "p119", page[19].ProductID)

	counts, err := store.CountByTiers(ctx, model.ArchiveTiers())
	require.NoError(t, err)
	assert.Equal(t, 80, counts[model.TierArchive])
	assert.Equal(t, 40, counts[model.TierMilitaryArchive])
	count, ok := counts[model.TierBritishArchive]
	assert.True(t, ok)
	assert.Zero(t, count)

	_, err = store.QueryByTiers(ctx, model.ArchiveTiers(), service.Page{Offset: -1})
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestSQLiteStorage_BulkUpsertRejectsWholeInputUpFront(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	err := store.BulkUpsertAssignments(ctx, []model.TierAssignment{
		{ProductID: "p1", Tier: model.TierNew},
		{ProductID: "p2", Tier: "BOGUS"},
	})
	require.ErrorIs(t, err, ErrInvalidAssignment)

	_, err = store.GetAssignment(ctx, "p1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_MoveHistory(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendMoves(ctx, []model.TierMove{
		{RunID: "run-2", ProductID: "p1", From: model.TierCurated, To: model.TierArchive, Reason: model.ReasonCapacity, MovedAt: base.Add(time.Hour)},
		{RunID: "run-1", ProductID: "p1", From: model.TierNew, To: model.TierCurated, Reason: model.ReasonCapacity, MovedAt: base},
		{RunID: "run-1", ProductID: "p2", From: model.TierNew, To: model.TierCurated, Reason: model.ReasonCapacity, MovedAt: base},
	}))

	history, err := store.GetMoveHistory(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "NEW → CURATED", history[0].Route())
	assert.Equal(t, "CURATED → ARCHIVE", history[1].Route())
	assert.Equal(t, "run-2", history[1].RunID)

	assert.ErrorIs(t, store.AppendMoves(ctx, []model.TierMove{{ProductID: "p1", To: "NOPE"}}), ErrInvalidMove)
}

func TestSQLiteStorage_Vision(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	analyses := []model.VisionAnalysis{
		{ProductID: "p1", Status: model.VisionCompleted, Grade: "S", ClothingType: "JACKET", Colors: []string{"olive", "black"}, Confidence: 80},
		{ProductID: "p2", Status: model.VisionCompleted, Grade: "A", ClothingType: "JACKET", Confidence: 60},
		{ProductID: "p3", Status: model.VisionFailed, ErrorMessage: "timeout"},
		{ProductID: "p4", Status: model.VisionProcessing},
	}
	for _, a := range analyses {
		require.NoError(t, store.SaveVisionAnalysis(ctx, a))
	}

	got, err := store.GetVisionAnalyses(ctx, []string{"p1", "p3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"olive", "black"}, got["p1"].Colors)
	assert.Equal(t, "timeout", got["p3"].ErrorMessage)

	stats, err := store.GetVisionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Pending)
	assert.InDelta(t, 70.0, stats.AvgConfidence, 0.001)
	assert.Equal(t, map[string]int{"S": 1, "A": 1}, stats.ByGrade)
	assert.Equal(t, map[string]int{"JACKET": 2}, stats.ByClothingType)

	assert.ErrorIs(t, store.SaveVisionAnalysis(ctx, model.VisionAnalysis{ProductID: "p5", Status: "done"}), ErrInvalidAnalysis)
}

func TestSQLiteStorage_NilContext(t *testing.T) {
	store := createTestStorage(t)

	//nolint:staticcheck // nil context is the case under test
	_, err := store.GetProducts(nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk(nil, 3))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunk([]string{"a", "b", "c"}, 2))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
