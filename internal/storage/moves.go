package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/tierkeeper/internal/model"
)

// AppendMoves records moves in one transaction. The log is never rewritten.
func (s *SQLiteStorage) AppendMoves(ctx context.Context, moves []model.TierMove) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, m := range moves {
		movedAt := m.MovedAt
		if movedAt.IsZero() {
			movedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tier_moves (run_id, product_id, from_tier, to_tier, reason, moved_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.RunID, m.ProductID, string(m.From), string(m.To), m.Reason, movedAt.UTC()); err != nil {
			return fmt.Errorf("failed to append move for %s: %w", m.ProductID, err)
		}
	}

	return tx.Commit()
}

// GetMoveHistory returns every recorded move for productID, oldest first.
func (s *SQLiteStorage) GetMoveHistory(ctx context.Context, productID string) ([]model.TierMove, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, product_id, from_tier, to_tier, reason, moved_at
		FROM tier_moves
		WHERE product_id = ?
		ORDER BY moved_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query move history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var moves []model.TierMove
	for rows.Next() {
		var (
			m                   model.TierMove
			runID, from, reason sql.NullString
			to                  string
		)
		if err := rows.Scan(&m.ID, &runID, &m.ProductID, &from, &to, &reason, &m.MovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		m.RunID = runID.String
		m.From = model.Tier(from.String)
		m.To = model.Tier(to)
		m.Reason = reason.String
		moves = append(moves, m)
	}
	return moves, rows.Err()
}
