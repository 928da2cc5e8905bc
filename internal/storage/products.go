package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"

	"github.com/shopspring/decimal"
)

const productColumns = `id, name, price, image_url, extra_image_urls, display_category_ids,
	registered_at, brand, brand_tier, grade, status, stock, updated_at`

// SaveProducts inserts or updates products in a single transaction.
func (s *SQLiteStorage) SaveProducts(ctx context.Context, products []model.Product) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProducts(products); err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			image_url = excluded.image_url,
			extra_image_urls = excluded.extra_image_urls,
			display_category_ids = excluded.display_category_ids,
			registered_at = excluded.registered_at,
			brand = excluded.brand,
			brand_tier = excluded.brand_tier,
			grade = excluded.grade,
			status = excluded.status,
			stock = excluded.stock,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for i := range products {
		p := &products[i]
		extras, err := encodeList(p.ExtraImageURLs)
		if err != nil {
			return err
		}
		displayIDs, err := encodeList(p.DisplayIDs)
		if err != nil {
			return err
		}
		updatedAt := p.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}

		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Name, p.Price.String(), p.ImageURL, extras, displayIDs,
			nullTime(p.RegisteredAt), p.Brand, p.BrandTier, p.Grade, p.Status, p.Stock, updatedAt,
		); err != nil {
			return fmt.Errorf("failed to save product %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// GetProduct returns a single product or common.ErrNotFound.
func (s *SQLiteStorage) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// GetProducts returns the whole catalogue ordered by id.
func (s *SQLiteStorage) GetProducts(ctx context.Context) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryProducts(ctx, s.db, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

// GetProductsByIDs returns the products with the given ids ordered by id.
// Unknown ids are ignored.
func (s *SQLiteStorage) GetProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var products []model.Product
	for _, group := range chunk(ids, 500) {
		batch, err := s.queryProducts(ctx, s.db,
			`SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders(len(group))+`) ORDER BY id`,
			stringArgs(group)...)
		if err != nil {
			return nil, err
		}
		products = append(products, batch...)
	}
	return products, nil
}

func (s *SQLiteStorage) queryProducts(ctx context.Context, q queryable, query string, args ...any) ([]model.Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p                               model.Product
		price                           string
		imageURL, extras, displayIDs    sql.NullString
		brand, brandTier, grade, status sql.NullString
		registeredAt, updatedAt         sql.NullTime
	)

	if err := row.Scan(
		&p.ID, &p.Name, &price, &imageURL, &extras, &displayIDs,
		&registeredAt, &brand, &brandTier, &grade, &status, &p.Stock, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("product %s has malformed price %q: %w", p.ID, price, err)
	}
	if p.ExtraImageURLs, err = decodeList(extras); err != nil {
		return nil, err
	}
	if p.DisplayIDs, err = decodeList(displayIDs); err != nil {
		return nil, err
	}
	p.ImageURL = imageURL.String
	p.Brand = brand.String
	p.BrandTier = brandTier.String
	p.Grade = grade.String
	p.Status = status.String
	p.RegisteredAt = registeredAt.Time
	p.UpdatedAt = updatedAt.Time

	return &p, nil
}

func encodeList(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return values, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
