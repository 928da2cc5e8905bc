package main

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/config"
	"github.com/Veraticus/tierkeeper/internal/testutil"
	"github.com/Veraticus/tierkeeper/internal/testutil/catalog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, provider string) *app {
	t.Helper()
	return newSeededTestApp(t, provider, nil)
}

func newSeededTestApp(t *testing.T, provider string, configure func(catalog.Builder) catalog.Builder) *app {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	db := testutil.SetupTestDBWithBuilder(t, configure)
	v := viper.New()
	config.SetDefaults(v)
	v.Set("database.path", db.Path)
	v.Set("llm.provider", provider)

	cfg, err := config.Load(v)
	require.NoError(t, err)

	a := &app{
		cfg:    cfg,
		store:  db.Storage,
		tables: classification.DefaultTables(),
		logger: common.DiscardLogger(),
	}
	t.Cleanup(a.Close)
	return a
}

func TestApp_MockProvider(t *testing.T) {
	a := newTestApp(t, "mock")
	ctx := context.Background()

	q, err := a.archiveQueue(ctx)
	require.NoError(t, err)
	assert.NotNil(t, q)

	_, err = a.visionQueue(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)
}

func TestApp_ProvidersBuiltOnce(t *testing.T) {
	a := newTestApp(t, "mock")
	first, err := a.providers(context.Background())
	require.NoError(t, err)
	second, err := a.providers(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestApp_MissingAPIKey(t *testing.T) {
	a := newTestApp(t, "anthropic")

	_, err := a.archiveQueue(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestApp_RebalancerUsesSnapshotsOnSQLite(t *testing.T) {
	a := newSeededTestApp(t, "mock", func(b catalog.Builder) catalog.Builder {
		return b.WithFixture(catalog.FixtureOverfullNew)
	})

	r, err := a.rebalancer(true)
	require.NoError(t, err)

	plan, err := r.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 50, plan.Moved())

	manager, err := a.snapshots()
	require.NoError(t, err)
	snaps, err := manager.List(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].IsAuto)
}

func TestServerDeps_MockProviderDisablesVision(t *testing.T) {
	a := newTestApp(t, "mock")

	deps, err := serverDeps(context.Background(), a)
	require.NoError(t, err)
	assert.NotNil(t, deps.Archive)
	assert.NotNil(t, deps.Rebalancer)
	assert.Nil(t, deps.Vision)
	assert.Empty(t, deps.Publishers)
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local), got)

	got, err = parseDate("2025-06-01T12:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), got)

	_, err = parseDate("June 1st")
	assert.Error(t, err)
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{size: 512, want: "512 B"},
		{size: 2048, want: "2.0 KB"},
		{size: 5 * 1024 * 1024, want: "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFileSize(tt.size))
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", formatRelativeTime(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", formatRelativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", formatRelativeTime(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", formatRelativeTime(now.Add(-48*time.Hour), now))
	assert.Equal(t, "2025-05-01", formatRelativeTime(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), now))
}
