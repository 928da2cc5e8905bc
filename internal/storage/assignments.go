package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// BulkUpsertBatchSize is the number of assignments written per transaction.
const BulkUpsertBatchSize = 50

const assignmentColumns = `product_id, tier, reason, confidence, override_date, updated_at`

const upsertAssignmentSQL = `
	INSERT INTO tier_assignments (` + assignmentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(product_id) DO UPDATE SET
		tier = excluded.tier,
		reason = excluded.reason,
		confidence = excluded.confidence,
		override_date = COALESCE(excluded.override_date, tier_assignments.override_date),
		updated_at = excluded.updated_at
`

// GetAssignment returns the assignment for productID or a wrapped common.ErrNotFound.
func (s *SQLiteStorage) GetAssignment(ctx context.Context, productID string) (*model.TierAssignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM tier_assignments WHERE product_id = ?`, productID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assignment for %s: %w", productID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// GetAssignments returns the existing assignments for productIDs keyed by product id.
func (s *SQLiteStorage) GetAssignments(ctx context.Context, productIDs []string) (map[string]model.TierAssignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]model.TierAssignment, len(productIDs))
	for _, group := range chunk(productIDs, 500) {
		list, err := s.queryAssignments(ctx, s.db,
			`SELECT `+assignmentColumns+` FROM tier_assignments WHERE product_id IN (`+placeholders(len(group))+`)`,
			stringArgs(group)...)
		if err != nil {
			return nil, err
		}
		for _, a := range list {
			out[a.ProductID] = a
		}
	}
	return out, nil
}

// UpsertAssignment writes a single assignment. A nil OverrideDate keeps any
// override already stored for the product.
func (s *SQLiteStorage) UpsertAssignment(ctx context.Context, assignment model.TierAssignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAssignment(assignment); err != nil {
		return err
	}
	return upsertAssignmentTx(ctx, s.db, assignment)
}

// BulkUpsertAssignments writes assignments in transactions of BulkUpsertBatchSize.
// A failed batch leaves earlier batches applied.
func (s *SQLiteStorage) BulkUpsertAssignments(ctx context.Context, assignments []model.TierAssignment) error {
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
		if err := s.upsertBatch(ctx, assignments[start:end]); err != nil {
			return fmt.Errorf("batch starting at %d: %w", start, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) upsertBatch(ctx context.Context, batch []model.TierAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range batch {
		if err := upsertAssignmentTx(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertAssignmentTx(ctx context.Context, q queryable, a model.TierAssignment) error {
	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	var override any
	if a.OverrideDate != nil {
		override = a.OverrideDate.UTC()
	}

	if _, err := q.ExecContext(ctx, upsertAssignmentSQL,
		a.ProductID, string(a.Tier), a.Reason, a.Confidence, override, updatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to upsert assignment for %s: %w", a.ProductID, err)
	}
	return nil
}

// QueryByTier returns every assignment in tier ordered by product id.
func (s *SQLiteStorage) QueryByTier(ctx context.Context, tier model.Tier) ([]model.TierAssignment, error) {
	return s.QueryByTiers(ctx, []model.Tier{tier}, service.Page{})
}

// QueryByTiers returns one page of assignments in any of tiers ordered by product id.
func (s *SQLiteStorage) QueryByTiers(ctx context.Context, tiers []model.Tier, page service.Page) ([]model.TierAssignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTiers(tiers); err != nil {
		return nil, err
	}
	if page.Offset < 0 || page.Limit < 0 {
		return nil, fmt.Errorf("%w: offset %d limit %d", ErrInvalidPage, page.Offset, page.Limit)
	}

	limit := page.Limit
	if limit == 0 {
		limit = -1
	}

	args := tierArgs(tiers)
	args = append(args, limit, page.Offset)
	return s.queryAssignments(ctx, s.db, `
		SELECT `+assignmentColumns+`
		FROM tier_assignments
		WHERE tier IN (`+placeholders(len(tiers))+`)
		ORDER BY product_id
		LIMIT ? OFFSET ?
	`, args...)
}

// CountByTiers returns the population of each requested tier. Tiers with no
// members are present with a zero count.
func (s *SQLiteStorage) CountByTiers(ctx context.Context, tiers []model.Tier) (map[model.Tier]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTiers(tiers); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tier, COUNT(*)
		FROM tier_assignments
		WHERE tier IN (`+placeholders(len(tiers))+`)
		GROUP BY tier
	`, tierArgs(tiers)...)
	if err != nil {
		return nil, fmt.Errorf("failed to count tiers: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (s *SQLiteStorage) queryAssignments(ctx context.Context, q queryable, query string, args ...any) ([]model.TierAssignment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.TierAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAssignment(row rowScanner) (*model.TierAssignment, error) {
	var (
		a        model.TierAssignment
		tier     string
		reason   sql.NullString
		override sql.NullTime
	)
	if err := row.Scan(&a.ProductID, &tier, &reason, &a.Confidence, &override, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Tier = model.Tier(tier)
	a.Reason = reason.String
	if override.Valid {
		t := override.Time
		a.OverrideDate = &t
	}
	return &a, nil
}

func tierArgs(tiers []model.Tier) []any {
	args := make([]any, len(tiers))
	for i, t := range tiers {
		args[i] = string(t)
	}
	return args
}
