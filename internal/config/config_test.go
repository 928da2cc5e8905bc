package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, filepath.IsAbs(cfg.Database.Path) || strings.HasPrefix(cfg.Database.Path, "$"))
	assert.Equal(t, 30, cfg.Lifecycle.NewMaxDays)
	assert.Equal(t, engine.DefaultArchiveQueueConfig(), cfg.ArchiveQueue)
	assert.Equal(t, engine.DefaultVisionQueueConfig(), cfg.VisionQueue)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, 90*time.Second, cfg.LLM.RequestTimeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Server.TLS)
	assert.Equal(t, "certs", filepath.Base(cfg.Server.CertDir))
	assert.NotContains(t, cfg.Server.CertDir, "~")

	rb, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultRebalanceConfig(), rb)
}

func TestLoad_FileOverrides(t *testing.T) {
	v := newViper(t, `
database:
  driver: postgres
  dsn: postgres://localhost/tierkeeper
lifecycle:
  new_max_days: 14
  curated_max_days: 45
  archive_max_days: 120
rebalance:
  capacities:
    new: 150
    military archive: 80
  protected: [kids, clearance]
archive_queue:
  concurrency: 5
  batch_delay: 250ms
  run_budget: 4m
llm:
  provider: anthropic
  api_key: sk-test
display_categories:
  outdoor archive: "abc123"
`)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.StorageOptions().Driver)
	assert.Equal(t, 14, cfg.Lifecycle.NewMaxDays)
	assert.Equal(t, 5, cfg.ArchiveQueue.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.ArchiveQueue.BatchDelay)
	assert.Equal(t, 4*time.Minute, cfg.ArchiveQueue.RunBudget)
	assert.Equal(t, 60*time.Second, cfg.ArchiveQueue.ItemTimeout, "unset keys keep defaults")
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)

	rb, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, 150, rb.Capacities[model.TierNew])
	assert.Equal(t, 80, rb.Capacities[model.TierMilitaryArchive])
	assert.Equal(t, engine.DefaultCapacity, rb.Capacities[model.TierCurated])
	assert.ElementsMatch(t, []model.Tier{model.TierKids, model.TierClearance}, rb.Protected)
}

func TestLoad_PartialCapacitiesKeepDefaults(t *testing.T) {
	cfg, err := Load(newViper(t, "rebalance:\n  capacities:\n    curated: 40\n"))
	require.NoError(t, err)

	assert.Len(t, cfg.Rebalance.Capacities, len(engine.BoundTiers()))
	rb, err := cfg.Engine()
	require.NoError(t, err)
	for _, tier := range engine.BoundTiers() {
		want := engine.DefaultCapacity
		if tier == model.TierCurated {
			want = 40
		}
		assert.Equal(t, want, rb.Capacities[tier], tier)
	}
}

func TestConfig_EngineFillsMissingCapacities(t *testing.T) {
	cfg := &Config{Rebalance: RebalanceConfig{
		Capacities: map[string]int{"new": 150},
		Protected:  []string{"kids"},
	}}

	rb, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, 150, rb.Capacities[model.TierNew])
	assert.Equal(t, engine.DefaultCapacity, rb.Capacities[model.TierCurated])
	assert.Equal(t, engine.DefaultCapacity, rb.Capacities[model.TierMilitaryArchive])
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "unknown driver",
			yaml:    "database:\n  driver: mongo\n",
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "postgres without dsn",
			yaml:    "database:\n  driver: postgres\n",
			wantErr: common.ErrMissingConfig,
		},
		{
			name:    "lifecycle out of order",
			yaml:    "lifecycle:\n  new_max_days: 90\n",
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "unknown capacity tier",
			yaml:    "rebalance:\n  capacities:\n    vintage: 10\n",
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "negative capacity",
			yaml:    "rebalance:\n  capacities:\n    curated: -1\n",
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "zero concurrency",
			yaml:    "vision_queue:\n  concurrency: 0\n",
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "bad log level",
			yaml:    "logging:\n  level: loud\n",
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "duplicate display ids",
			yaml:    "display_categories:\n  archive: same\n  curated: same\n",
			wantErr: common.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProviderKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ant")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "goog")

	assert.Equal(t, "ant", providerKeyFromEnv("anthropic"))
	assert.Equal(t, "goog", providerKeyFromEnv("gemini"))
	assert.Empty(t, providerKeyFromEnv("mock"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("TIERKEEPER_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/db/app.db", want: filepath.Join(home, "db/app.db")},
		{in: "$TIERKEEPER_TEST_DIR/app.db", want: "/srv/data/app.db"},
		{in: "/abs/path.db", want: "/abs/path.db"},
		{in: "~other/x", want: "~other/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandPath(tt.in), tt.in)
	}
}
