package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/lifecycle"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// DefaultCapacity is the population limit applied to every capacity-bound tier.
const DefaultCapacity = 200

// RebalanceConfig configures the rebalancer.
type RebalanceConfig struct {
	// Capacities must cover NEW, CURATED, ARCHIVE and every archive
	// sub-category. CLEARANCE tiers are never capacity bound.
	Capacities map[model.Tier]int
	// Protected tiers are left out of rebalancing entirely.
	Protected []model.Tier
}

// DefaultRebalanceConfig returns DefaultCapacity for every bound tier and protects KIDS.
func DefaultRebalanceConfig() RebalanceConfig {
	caps := map[model.Tier]int{
		model.TierNew:     DefaultCapacity,
		model.TierCurated: DefaultCapacity,
	}
	for _, t := range model.ArchiveTiers() {
		caps[t] = DefaultCapacity
	}
	return RebalanceConfig{
		Capacities: caps,
		Protected:  []model.Tier{model.TierKids},
	}
}

// BoundTiers lists the tiers that must have a capacity.
func BoundTiers() []model.Tier {
	return append([]model.Tier{model.TierNew, model.TierCurated}, model.ArchiveTiers()...)
}

// Validate rejects missing or negative capacities.
func (c RebalanceConfig) Validate() error {
	for _, t := range BoundTiers() {
		n, ok := c.Capacities[t]
		if !ok {
			return fmt.Errorf("%w: missing capacity for %s", common.ErrInvalidConfig, t)
		}
		if n < 0 {
			return fmt.Errorf("%w: negative capacity %d for %s", common.ErrInvalidConfig, n, t)
		}
	}
	for t := range c.Capacities {
		if !t.Valid() {
			return fmt.Errorf("%w: capacity for unknown tier %q", common.ErrInvalidConfig, t)
		}
	}
	return nil
}

// Plan is the outcome of a rebalance computation.
type Plan struct {
	Before map[model.Tier]int `json:"before"`
	After  map[model.Tier]int `json:"after"`
	Routes map[string]int     `json:"routes"`
	// Final is the tier each moved product ends in.
	Final map[string]model.Tier `json:"final"`
	RunID string                `json:"run_id"`
	// Moves lists every cascade step in the order it was taken. A product
	// can move more than once, e.g. NEW → CURATED → ARCHIVE.
	Moves     []model.TierMove `json:"moves"`
	Evaluated int              `json:"evaluated"`
	Protected int              `json:"protected"`
}

// Moved reports how many products changed tier.
func (p *Plan) Moved() int {
	return len(p.Final)
}

// NetMoves returns one move per product from its starting tier to its final tier, by product id.
func (p *Plan) NetMoves() []model.TierMove {
	first := make(map[string]model.TierMove, len(p.Final))
	for _, m := range p.Moves {
		if _, ok := first[m.ProductID]; !ok {
			first[m.ProductID] = m
		}
	}
	net := make([]model.TierMove, 0, len(first))
	for id, m := range first {
		m.To = p.Final[id]
		net = append(net, m)
	}
	sort.Slice(net, func(i, j int) bool { return net[i].ProductID < net[j].ProductID })
	return net
}

// RebalanceStore is the storage the rebalancer needs.
type RebalanceStore interface {
	service.ProductStore
	service.AssignmentStore
	service.MoveLog
}

// Rebalancer keeps every bound tier at or under capacity by evicting the
// lowest-scoring members one tier down.
type Rebalancer struct {
	store        RebalanceStore
	scorer       *Scorer
	snapshots    Snapshotter
	logger       *slog.Logger
	now          func() time.Time
	cfg          RebalanceConfig
	settings     lifecycle.Settings
	snapshotKeep int
}

// NewRebalancer creates a rebalancer. Configuration errors are returned here,
// before any work starts.
func NewRebalancer(store RebalanceStore, tables *classification.Tables, settings lifecycle.Settings, cfg RebalanceConfig, logger *slog.Logger) (*Rebalancer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tables == nil {
		return nil, fmt.Errorf("%w: rebalancer needs score tables", common.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebalancer{
		store:    store,
		scorer:   NewScorer(tables),
		cfg:      cfg,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// WithSnapshots makes Apply take an automatic snapshot first, keeping the newest keep.
func (r *Rebalancer) WithSnapshots(s Snapshotter, keep int) *Rebalancer {
	r.snapshots = s
	r.snapshotKeep = keep
	return r
}

// Plan computes the moves for placed without touching storage.
func (r *Rebalancer) Plan(placed []model.PlacedProduct) *Plan {
	plan := &Plan{
		RunID:  uuid.NewString(),
		Before: make(map[model.Tier]int),
		After:  make(map[model.Tier]int),
		Routes: make(map[string]int),
		Final:  make(map[string]model.Tier),
	}

	cohorts := make(map[model.Tier][]model.PlacedProduct)
	for _, p := range placed {
		plan.Before[p.Tier]++
		if slices.Contains(r.cfg.Protected, p.Tier) {
			plan.Protected++
			plan.After[p.Tier]++
			continue
		}
		plan.Evaluated++
		cohorts[p.Tier] = append(cohorts[p.Tier], p)
	}

	movedAt := r.now().UTC()
	evict := func(from, to model.Tier) {
		members := cohorts[from]
		capacity := r.cfg.Capacities[from]
		excess := len(members) - capacity
		if excess <= 0 {
			return
		}

		scored := r.scorer.ScoreCohort(members)
		rankForEviction(scored)

		survivors := make([]model.PlacedProduct, 0, capacity)
		for i, s := range scored {
			p := s.Placed
			if i >= excess {
				survivors = append(survivors, p)
				continue
			}
			plan.Moves = append(plan.Moves, model.TierMove{
				RunID:     plan.RunID,
				ProductID: p.Product.ID,
				From:      from,
				To:        to,
				Reason:    fmt.Sprintf("%s: score %d below cutoff of %d in %s", model.ReasonCapacity, s.Score.Total(), capacity, from),
				MovedAt:   movedAt,
			})
			plan.Routes[string(from)+" → "+string(to)]++
			plan.Final[p.Product.ID] = to
			p.Tier = to
			cohorts[to] = append(cohorts[to], p)
		}
		cohorts[from] = survivors

		r.logger.Debug("tier over capacity",
			"tier", from,
			"population", len(members),
			"capacity", capacity,
			"evicted", excess,
			"to", to)
	}

	evict(model.TierNew, model.TierCurated)
	evict(model.TierCurated, model.TierArchive)
	for _, sub := range model.ArchiveSubTiers() {
		evict(sub, model.TierClearance)
	}
	evict(model.TierArchive, model.TierClearance)

	for tier, members := range cohorts {
		if len(members) > 0 {
			plan.After[tier] += len(members)
		}
	}
	return plan
}

// Apply writes the plan's final tiers as one bulk upsert and appends its
// moves to the move log.
func (r *Rebalancer) Apply(ctx context.Context, plan *Plan) error {
	if plan == nil || plan.Moved() == 0 {
		return nil
	}

	if r.snapshots != nil {
		info, err := r.snapshots.AutoSnapshot(ctx, "rebalance", r.snapshotKeep)
		if err != nil {
			return fmt.Errorf("pre-rebalance snapshot failed: %w", err)
		}
		r.logger.Info("snapshot taken before rebalance", "snapshot", info.ID)
	}

	now := r.now().UTC()
	net := plan.NetMoves()
	assignments := make([]model.TierAssignment, len(net))
	for i, m := range net {
		assignments[i] = model.TierAssignment{
			ProductID: m.ProductID,
			Tier:      m.To,
			Reason:    fmt.Sprintf("rebalance %s", m.Route()),
			UpdatedAt: now,
		}
	}

	if err := r.store.BulkUpsertAssignments(ctx, assignments); err != nil {
		return fmt.Errorf("failed to apply rebalance: %w", err)
	}
	if err := r.store.AppendMoves(ctx, plan.Moves); err != nil {
		return fmt.Errorf("rebalance applied but moves not logged: %w", err)
	}

	r.logger.Info("rebalance applied", "run_id", plan.RunID, "moved", plan.Moved(), "steps", len(plan.Moves))
	return nil
}

// Run loads every product, plans, and applies unless dryRun.
func (r *Rebalancer) Run(ctx context.Context, dryRun bool) (*Plan, error) {
	placed, _, err := LoadPlacements(ctx, r.store, r.settings, r.now())
	if err != nil {
		return nil, err
	}

	plan := r.Plan(placed)
	r.logger.Info("rebalance planned",
		"run_id", plan.RunID,
		"evaluated", plan.Evaluated,
		"protected", plan.Protected,
		"moved", plan.Moved(),
		"dry_run", dryRun)

	if dryRun {
		return plan, nil
	}
	if err := r.Apply(ctx, plan); err != nil {
		return plan, err
	}
	return plan, nil
}
