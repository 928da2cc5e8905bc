package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/tierkeeper/internal/model"
)

const visionColumns = `product_id, status, brand, clothing_type, clothing_sub_type, gender, grade,
	grade_reason, colors, pattern, fabric, size, confidence, error_message, analyzed_at`

// SaveVisionAnalysis upserts the analysis for a product.
func (s *SQLiteStorage) SaveVisionAnalysis(ctx context.Context, a model.VisionAnalysis) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAnalysis(a); err != nil {
		return err
	}

	colors, err := encodeList(a.Colors)
	if err != nil {
		return err
	}
	analyzedAt := a.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vision_analysis (`+visionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			status = excluded.status,
			brand = excluded.brand,
			clothing_type = excluded.clothing_type,
			clothing_sub_type = excluded.clothing_sub_type,
			gender = excluded.gender,
			grade = excluded.grade,
			grade_reason = excluded.grade_reason,
			colors = excluded.colors,
			pattern = excluded.pattern,
			fabric = excluded.fabric,
			size = excluded.size,
			confidence = excluded.confidence,
			error_message = excluded.error_message,
			analyzed_at = excluded.analyzed_at
	`,
		a.ProductID, string(a.Status), a.Brand, a.ClothingType, a.ClothingSubType, a.Gender, a.Grade,
		a.GradeReason, colors, a.Pattern, a.Fabric, a.Size, a.Confidence, a.ErrorMessage, analyzedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save vision analysis for %s: %w", a.ProductID, err)
	}
	return nil
}

// GetVisionAnalyses returns stored analyses for productIDs keyed by product id.
func (s *SQLiteStorage) GetVisionAnalyses(ctx context.Context, productIDs []string) (map[string]model.VisionAnalysis, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]model.VisionAnalysis, len(productIDs))
	for _, group := range chunk(productIDs, 500) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+visionColumns+` FROM vision_analysis WHERE product_id IN (`+placeholders(len(group))+`)`,
			stringArgs(group)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query vision analyses: %w", err)
		}
		if err := scanAnalyses(rows, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanAnalyses(rows *sql.Rows, out map[string]model.VisionAnalysis) error {
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			a                                    model.VisionAnalysis
			status                               string
			brand, clothingType, clothingSubType sql.NullString
			gender, grade, gradeReason, colors   sql.NullString
			pattern, fabric, size, errorMessage  sql.NullString
			analyzedAt                           sql.NullTime
		)
		if err := rows.Scan(
			&a.ProductID, &status, &brand, &clothingType, &clothingSubType, &gender, &grade,
			&gradeReason, &colors, &pattern, &fabric, &size, &a.Confidence, &errorMessage, &analyzedAt,
		); err != nil {
			return fmt.Errorf("failed to scan vision analysis: %w", err)
		}

		var err error
		if a.Colors, err = decodeList(colors); err != nil {
			return err
		}
		a.Status = model.VisionStatus(status)
		a.Brand = brand.String
		a.ClothingType = clothingType.String
		a.ClothingSubType = clothingSubType.String
		a.Gender = gender.String
		a.Grade = grade.String
		a.GradeReason = gradeReason.String
		a.Pattern = pattern.String
		a.Fabric = fabric.String
		a.Size = size.String
		a.ErrorMessage = errorMessage.String
		a.AnalyzedAt = analyzedAt.Time
		out[a.ProductID] = a
	}
	return rows.Err()
}

// GetVisionStats aggregates all stored analyses. Grade and clothing type
// breakdowns and the average confidence cover completed analyses only.
func (s *SQLiteStorage) GetVisionStats(ctx context.Context) (*model.VisionStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	stats := &model.VisionStats{
		ByGrade:        make(map[string]int),
		ByClothingType: make(map[string]int),
	}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('pending', 'processing') THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN status = 'completed' THEN confidence END)
		FROM vision_analysis
	`).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Pending, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to query vision stats: %w", err)
	}
	stats.AvgConfidence = avg.Float64

	for column, dest := range map[string]map[string]int{
		"grade":         stats.ByGrade,
		"clothing_type": stats.ByClothingType,
	} {
		if err := s.groupCompleted(ctx, column, dest); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (s *SQLiteStorage) groupCompleted(ctx context.Context, column string, dest map[string]int) error {
	// column is one of two fixed names chosen by GetVisionStats.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM vision_analysis
		WHERE status = 'completed' AND COALESCE(%[1]s, '') != ''
		GROUP BY %[1]s
	`, column))
	if err != nil {
		return fmt.Errorf("failed to group vision analyses by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		dest[key] = count
	}
	return rows.Err()
}
