package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPostgresStorage(t *testing.T) *PostgresStorage {
	t.Helper()

	dsn := os.Getenv("TIERKEEPER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TIERKEEPER_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStorage(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(ctx))
	_, err = store.pool.Exec(ctx, `TRUNCATE products, tier_assignments, tier_moves, vision_analysis`)
	require.NoError(t, err)
	return store
}

func TestPostgresStorage_Assignments(t *testing.T) {
	store := createPostgresStorage(t)
	ctx := context.Background()

	override := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertAssignment(ctx, model.TierAssignment{
		ProductID: "p000", Tier: model.TierCurated, OverrideDate: &override,
	}))

	var assignments []model.TierAssignment
	for i := 0; i < 75; i++ {
		assignments = append(assignments, model.TierAssignment{
			ProductID: fmt.Sprintf("p%03d", i),
			Tier:      model.TierArchive,
		})
	}
	require.NoError(t, store.BulkUpsertAssignments(ctx, assignments))

	got, err := store.GetAssignment(ctx, "p000")
	require.NoError(t, err)
	assert.Equal(t, model.TierArchive, got.Tier)
	require.NotNil(t, got.OverrideDate)
	assert.True(t, override.Equal(*got.OverrideDate))

	page, err := store.QueryByTiers(ctx, model.ArchiveTiers(), service.Page{Offset: 70, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page, 5)

	counts, err := store.CountByTiers(ctx, []model.Tier{model.TierArchive, model.TierBritishArchive})
	require.NoError(t, err)
	assert.Equal(t, 75, counts[model.TierArchive])
	assert.Zero(t, counts[model.TierBritishArchive])

	_, err = store.GetAssignment(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgresStorage_ProductsAndMoves(t *testing.T) {
	store := createPostgresStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProducts(ctx, []model.Product{testProduct("p1")}))
	got, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "59000", got.Price.String())
	assert.Equal(t, []string{"display-1"}, got.DisplayIDs)

	require.NoError(t, store.AppendMoves(ctx, []model.TierMove{
		{RunID: "r", ProductID: "p1", From: model.TierNew, To: model.TierCurated},
	}))
	history, err := store.GetMoveHistory(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TierCurated, history[0].To)
}
