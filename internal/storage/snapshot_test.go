package storage

import (
	"context"
	"testing"

	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotManager_CreateAndList(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAssignment(ctx, model.TierAssignment{ProductID: "p1", Tier: model.TierNew}))

	sm, err := store.NewSnapshotManager()
	require.NoError(t, err)

	info, err := sm.Create(ctx, "before-test", "manual snapshot", false)
	require.NoError(t, err)
	assert.Equal(t, "before-test", info.ID)
	assert.Equal(t, 1, info.Assignments())
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)

	_, err = sm.Create(ctx, "before-test", "again", false)
	assert.ErrorIs(t, err, ErrSnapshotExists)

	list, err := sm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "manual snapshot", list[0].Description)

	require.NoError(t, sm.Delete(ctx, "before-test"))
	assert.ErrorIs(t, sm.Delete(ctx, "before-test"), ErrSnapshotNotFound)
}

func TestSnapshotManager_AutoSnapshotPrunes(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	sm, err := store.NewSnapshotManager()
	require.NoError(t, err)

	_, err = sm.Create(ctx, "keep-me", "manual", false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := sm.AutoSnapshot(ctx, "rebalance", 2)
		require.NoError(t, err)
	}

	list, err := sm.List(ctx)
	require.NoError(t, err)

	auto := 0
	for _, info := range list {
		if info.IsAuto {
			auto++
		}
	}
	assert.Equal(t, 2, auto)
	assert.Len(t, list, 3)
}

func TestSnapshotManager_RejectsBadTags(t *testing.T) {
	store := createTestStorage(t)
	sm, err := store.NewSnapshotManager()
	require.NoError(t, err)

	for _, tag := range []string{"../escape", "a/b", "quote'd"} {
		_, err := sm.Create(context.Background(), tag, "", false)
		assert.ErrorIs(t, err, ErrInvalidSnapshotTag, tag)
	}
}

func TestNewSnapshotManager_InMemory(t *testing.T) {
	_, err := NewSnapshotManager(nil, ":memory:")
	assert.ErrorIs(t, err, ErrSnapshotUnsupported)
}
