package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"github.com/shopspring/decimal"
)

var _ service.Storage = (*PostgresStorage)(nil)

//go:embed pgmigrations/*.sql
var pgMigrationFS embed.FS

// PostgresStorage implements service.Storage on PostgreSQL through a pgx pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
	dsn  string
}

// NewPostgresStorage connects to dsn and verifies the connection.
func NewPostgresStorage(ctx context.Context, dsn string, maxConns int32) (*PostgresStorage, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStorage{pool: pool, dsn: dsn}, nil
}

// Close releases the pool.
func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// Migrate applies the embedded migrations with golang-migrate.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	db, err := sql.Open("pgx", p.dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(pgMigrationFS, "pgmigrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w: migration %d left dirty", common.ErrDatabaseCorrupted, version)
	}
	slog.Debug("Postgres schema ready", "version", version)
	return nil
}

const pgUpsertProductSQL = `
	INSERT INTO products (` + productColumns + `)
	VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		price = EXCLUDED.price,
		image_url = EXCLUDED.image_url,
		extra_image_urls = EXCLUDED.extra_image_urls,
		display_category_ids = EXCLUDED.display_category_ids,
		registered_at = EXCLUDED.registered_at,
		brand = EXCLUDED.brand,
		brand_tier = EXCLUDED.brand_tier,
		grade = EXCLUDED.grade,
		status = EXCLUDED.status,
		stock = EXCLUDED.stock,
		updated_at = EXCLUDED.updated_at
`

const pgProductSelect = `SELECT id, name, price::text, image_url, extra_image_urls, display_category_ids,
	registered_at, brand, brand_tier, grade, status, stock, updated_at FROM products`

const pgUpsertAssignmentSQL = `
	INSERT INTO tier_assignments (` + assignmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (product_id) DO UPDATE SET
		tier = EXCLUDED.tier,
		reason = EXCLUDED.reason,
		confidence = EXCLUDED.confidence,
		override_date = COALESCE(EXCLUDED.override_date, tier_assignments.override_date),
		updated_at = EXCLUDED.updated_at
`

// SaveProducts upserts products in one batch.
func (p *PostgresStorage) SaveProducts(ctx context.Context, products []model.Product) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProducts(products); err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i := range products {
		pr := &products[i]
		updatedAt := pr.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		batch.Queue(pgUpsertProductSQL,
			pr.ID, pr.Name, pr.Price.String(), pr.ImageURL, pr.ExtraImageURLs, pr.DisplayIDs,
			nullTime(pr.RegisteredAt), pr.Brand, pr.BrandTier, pr.Grade, pr.Status, pr.Stock, updatedAt,
		)
	}

	return p.sendBatchTx(ctx, batch)
}

// GetProduct returns a single product or common.ErrNotFound.
func (p *PostgresStorage) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	pr, err := scanPgProduct(p.pool.QueryRow(ctx, pgProductSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return pr, nil
}

// GetProducts returns the whole catalogue ordered by id.
func (p *PostgresStorage) GetProducts(ctx context.Context) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return p.queryProducts(ctx, pgProductSelect+` ORDER BY id`)
}

// GetProductsByIDs returns the products with the given ids ordered by id.
func (p *PostgresStorage) GetProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return p.queryProducts(ctx, pgProductSelect+` WHERE id = ANY($1) ORDER BY id`, ids)
}

func (p *PostgresStorage) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		pr, err := scanPgProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

func scanPgProduct(row rowScanner) (*model.Product, error) {
	var (
		pr                         model.Product
		price                      string
		imageURL, brand, brandTier *string
		grade, status              *string
		registeredAt               *time.Time
	)
	if err := row.Scan(
		&pr.ID, &pr.Name, &price, &imageURL, &pr.ExtraImageURLs, &pr.DisplayIDs,
		&registeredAt, &brand, &brandTier, &grade, &status, &pr.Stock, &pr.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if pr.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("product %s has malformed price %q: %w", pr.ID, price, err)
	}
	pr.ImageURL = deref(imageURL)
	pr.Brand = deref(brand)
	pr.BrandTier = deref(brandTier)
	pr.Grade = deref(grade)
	pr.Status = deref(status)
	if registeredAt != nil {
		pr.RegisteredAt = *registeredAt
	}
	return &pr, nil
}

// GetAssignment returns the assignment for productID or a wrapped common.ErrNotFound.
func (p *PostgresStorage) GetAssignment(ctx context.Context, productID string) (*model.TierAssignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return nil, err
	}

	a, err := scanPgAssignment(p.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM tier_assignments WHERE product_id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("assignment for %s: %w", productID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// GetAssignments returns the existing assignments for productIDs keyed by product id.
func (p *PostgresStorage) GetAssignments(ctx context.Context, productIDs []string) (map[string]model.TierAssignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]model.TierAssignment, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	list, err := p.queryAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM tier_assignments WHERE product_id = ANY($1)`, productIDs)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		out[a.ProductID] = a
	}
	return out, nil
}

// UpsertAssignment writes a single assignment.
func (p *PostgresStorage) UpsertAssignment(ctx context.Context, a model.TierAssignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAssignment(a); err != nil {
		return err
	}

	if _, err := p.pool.Exec(ctx, pgUpsertAssignmentSQL, assignmentArgs(a)...); err != nil {
		return fmt.Errorf("failed to upsert assignment for %s: %w", a.ProductID, err)
	}
	return nil
}

// BulkUpsertAssignments writes assignments as pgx batches of BulkUpsertBatchSize,
// each in its own transaction.
func (p *PostgresStorage) BulkUpsertAssignments(ctx context.Context, assignments []model.TierAssignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for _, a := range assignments {
		if err := validateAssignment(a); err != nil {
			return err
		}
	}

	for start := 0; start < len(assignments); start += BulkUpsertBatchSize {
		end := min(start+BulkUpsertBatchSize, len(assignments))
		batch := &pgx.Batch{}
		for _, a := range assignments[start:end] {
			batch.Queue(pgUpsertAssignmentSQL, assignmentArgs(a)...)
		}
		if err := p.sendBatchTx(ctx, batch); err != nil {
			return fmt.Errorf("batch starting at %d: %w", start, err)
		}
	}
	return nil
}

func assignmentArgs(a model.TierAssignment) []any {
	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return []any{a.ProductID, string(a.Tier), a.Reason, a.Confidence, a.OverrideDate, updatedAt.UTC()}
}

// QueryByTier returns every assignment in tier ordered by product id.
func (p *PostgresStorage) QueryByTier(ctx context.Context, tier model.Tier) ([]model.TierAssignment, error) {
	return p.QueryByTiers(ctx, []model.Tier{tier}, service.Page{})
}

// QueryByTiers returns one page of assignments in any of tiers ordered by product id.
func (p *PostgresStorage) QueryByTiers(ctx context.Context, tiers []model.Tier, page service.Page) ([]model.TierAssignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTiers(tiers); err != nil {
		return nil, err
	}
	if page.Offset < 0 || page.Limit < 0 {
		return nil, fmt.Errorf("%w: offset %d limit %d", ErrInvalidPage, page.Offset, page.Limit)
	}

	var limit any
	if page.Limit > 0 {
		limit = page.Limit
	}
	return p.queryAssignments(ctx, `
		SELECT `+assignmentColumns+`
		FROM tier_assignments
		WHERE tier = ANY($1)
		ORDER BY product_id
		LIMIT $2 OFFSET $3
	`, tierStrings(tiers), limit, page.Offset)
}

// CountByTiers returns the population of each requested tier.
func (p *PostgresStorage) CountByTiers(ctx context.Context, tiers []model.Tier) (map[model.Tier]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTiers(tiers); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT tier, COUNT(*)
		FROM tier_assignments
		WHERE tier = ANY($1)
		GROUP BY tier
	`, tierStrings(tiers))
	if err != nil {
		return nil, fmt.Errorf("failed to count tiers: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Tier]int, len(tiers))
	for _, t := range tiers {
		counts[t] = 0
	}
	for rows.Next() {
		var (
			tier  string
			count int
		)
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		counts[model.Tier(tier)] = count
	}
	return counts, rows.Err()
}

func (p *PostgresStorage) queryAssignments(ctx context.Context, query string, args ...any) ([]model.TierAssignment, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []model.TierAssignment
	for rows.Next() {
		a, err := scanPgAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanPgAssignment(row rowScanner) (*model.TierAssignment, error) {
	var (
		a      model.TierAssignment
		tier   string
		reason *string
	)
	if err := row.Scan(&a.ProductID, &tier, &reason, &a.Confidence, &a.OverrideDate, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Tier = model.Tier(tier)
	a.Reason = deref(reason)
	return &a, nil
}

// AppendMoves records moves in one batch.
func (p *PostgresStorage) AppendMoves(ctx context.Context, moves []model.TierMove) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for _, m := range moves {
		if err := validateMove(m); err != nil {
			return err
		}
	}
	if len(moves) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, m := range moves {
		movedAt := m.MovedAt
		if movedAt.IsZero() {
			movedAt = now
		}
		batch.Queue(`
			INSERT INTO tier_moves (run_id, product_id, from_tier, to_tier, reason, moved_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, m.RunID, m.ProductID, string(m.From), string(m.To), m.Reason, movedAt.UTC())
	}
	return p.sendBatchTx(ctx, batch)
}

// GetMoveHistory returns every recorded move for productID, oldest first.
func (p *PostgresStorage) GetMoveHistory(ctx context.Context, productID string) ([]model.TierMove, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, run_id, product_id, from_tier, to_tier, reason, moved_at
		FROM tier_moves
		WHERE product_id = $1
		ORDER BY moved_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query move history: %w", err)
	}
	defer rows.Close()

	var moves []model.TierMove
	for rows.Next() {
		var (
			m                   model.TierMove
			runID, from, reason *string
			to                  string
		)
		if err := rows.Scan(&m.ID, &runID, &m.ProductID, &from, &to, &reason, &m.MovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		m.RunID = deref(runID)
		m.From = model.Tier(deref(from))
		m.To = model.Tier(to)
		m.Reason = deref(reason)
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// SaveVisionAnalysis upserts the analysis for a product.
func (p *PostgresStorage) SaveVisionAnalysis(ctx context.Context, a model.VisionAnalysis) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAnalysis(a); err != nil {
		return err
	}

	analyzedAt := a.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO vision_analysis (`+visionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (product_id) DO UPDATE SET
			status = EXCLUDED.status,
			brand = EXCLUDED.brand,
			clothing_type = EXCLUDED.clothing_type,
			clothing_sub_type = EXCLUDED.clothing_sub_type,
			gender = EXCLUDED.gender,
			grade = EXCLUDED.grade,
			grade_reason = EXCLUDED.grade_reason,
			colors = EXCLUDED.colors,
			pattern = EXCLUDED.pattern,
			fabric = EXCLUDED.fabric,
			size = EXCLUDED.size,
			confidence = EXCLUDED.confidence,
			error_message = EXCLUDED.error_message,
			analyzed_at = EXCLUDED.analyzed_at
	`,
		a.ProductID, string(a.Status), a.Brand, a.ClothingType, a.ClothingSubType, a.Gender, a.Grade,
		a.GradeReason, a.Colors, a.Pattern, a.Fabric, a.Size, a.Confidence, a.ErrorMessage, analyzedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save vision analysis for %s: %w", a.ProductID, err)
	}
	return nil
}

// GetVisionAnalyses returns stored analyses for productIDs keyed by product id.
func (p *PostgresStorage) GetVisionAnalyses(ctx context.Context, productIDs []string) (map[string]model.VisionAnalysis, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]model.VisionAnalysis, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+visionColumns+` FROM vision_analysis WHERE product_id = ANY($1)`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query vision analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a                                    model.VisionAnalysis
			status                               string
			brand, clothingType, clothingSubType *string
			gender, grade, gradeReason           *string
			pattern, fabric, size, errorMessage  *string
			analyzedAt                           *time.Time
		)
		if err := rows.Scan(
			&a.ProductID, &status, &brand, &clothingType, &clothingSubType, &gender, &grade,
			&gradeReason, &a.Colors, &pattern, &fabric, &size, &a.Confidence, &errorMessage, &analyzedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vision analysis: %w", err)
		}
		a.Status = model.VisionStatus(status)
		a.Brand = deref(brand)
		a.ClothingType = deref(clothingType)
		a.ClothingSubType = deref(clothingSubType)
		a.Gender = deref(gender)
		a.Grade = deref(grade)
		a.GradeReason = deref(gradeReason)
		a.Pattern = deref(pattern)
		a.Fabric = deref(fabric)
		a.Size = deref(size)
		a.ErrorMessage = deref(errorMessage)
		if analyzedAt != nil {
			a.AnalyzedAt = *analyzedAt
		}
		out[a.ProductID] = a
	}
	return out, rows.Err()
}

// GetVisionStats aggregates all stored analyses.
func (p *PostgresStorage) GetVisionStats(ctx context.Context) (*model.VisionStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	stats := &model.VisionStats{
		ByGrade:        make(map[string]int),
		ByClothingType: make(map[string]int),
	}

	var avg *float64
	err := p.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
			AVG(confidence) FILTER (WHERE status = 'completed')::float8
		FROM vision_analysis
	`).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Pending, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to query vision stats: %w", err)
	}
	if avg != nil {
		stats.AvgConfidence = *avg
	}

	rows, err := p.pool.Query(ctx, `
		SELECT 'grade', grade, COUNT(*) FROM vision_analysis
		WHERE status = 'completed' AND COALESCE(grade, '') <> '' GROUP BY grade
		UNION ALL
		SELECT 'clothing_type', clothing_type, COUNT(*) FROM vision_analysis
		WHERE status = 'completed' AND COALESCE(clothing_type, '') <> '' GROUP BY clothing_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to group vision analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind, key string
			count     int
		)
		if err := rows.Scan(&kind, &key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan vision group: %w", err)
		}
		if kind == "grade" {
			stats.ByGrade[key] = count
		} else {
			stats.ByClothingType[key] = count
		}
	}
	return stats, rows.Err()
}

// sendBatchTx runs batch inside one transaction.
func (p *PostgresStorage) sendBatchTx(ctx context.Context, batch *pgx.Batch) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return tx.Commit(ctx)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func tierStrings(tiers []model.Tier) []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = string(t)
	}
	return out
}
