package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// UnknownProductsError lists requested ids the catalogue does not know, in
// request order. It matches common.ErrNotFound.
type UnknownProductsError struct {
	IDs []string
}

func (e *UnknownProductsError) Error() string {
	return "unknown product ids: " + strings.Join(e.IDs, ", ")
}

// Is reports whether target is common.ErrNotFound.
func (e *UnknownProductsError) Is(target error) bool {
	return target == common.ErrNotFound
}

// RequestedProducts loads the products a caller named explicitly. Any id the
// catalogue does not know fails the whole lookup with *UnknownProductsError.
func RequestedProducts(ctx context.Context, store service.ProductStore, ids []string) ([]model.Product, error) {
	products, err := store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	found := make(map[string]struct{}, len(products))
	for _, p := range products {
		found[p.ID] = struct{}{}
	}
	var unknown []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := found[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownProductsError{IDs: unknown}
	}
	return products, nil
}
