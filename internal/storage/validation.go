// Package storage provides the data persistence layer for tierkeeper.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tierkeeper/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrInvalidAssignment = errors.New("invalid tier assignment")
	ErrInvalidMove       = errors.New("invalid tier move")
	ErrInvalidAnalysis   = errors.New("invalid vision analysis")
	ErrInvalidPage       = errors.New("invalid page")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateProducts(products []model.Product) error {
	for i := range products {
		p := &products[i]
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("product at index %d: %w: missing ID", i, ErrInvalidProduct)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("product %s: %w: missing name", p.ID, ErrInvalidProduct)
		}
		if p.Price.IsNegative() {
			return fmt.Errorf("product %s: %w: negative price", p.ID, ErrInvalidProduct)
		}
	}
	return nil
}

func validateAssignment(a model.TierAssignment) error {
	if strings.TrimSpace(a.ProductID) == "" {
		return fmt.Errorf("%w: missing product ID", ErrInvalidAssignment)
	}
	if !a.Tier.Valid() {
		return fmt.Errorf("%w: unknown tier %q for %s", ErrInvalidAssignment, a.Tier, a.ProductID)
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		return fmt.Errorf("%w: confidence %d out of range for %s", ErrInvalidAssignment, a.Confidence, a.ProductID)
	}
	return nil
}

func validateMove(m model.TierMove) error {
	if strings.TrimSpace(m.ProductID) == "" {
		return fmt.Errorf("%w: missing product ID", ErrInvalidMove)
	}
	if !m.To.Valid() {
		return fmt.Errorf("%w: unknown destination tier %q", ErrInvalidMove, m.To)
	}
	if m.From != "" && !m.From.Valid() {
		return fmt.Errorf("%w: unknown source tier %q", ErrInvalidMove, m.From)
	}
	return nil
}

func validateAnalysis(a model.VisionAnalysis) error {
	if strings.TrimSpace(a.ProductID) == "" {
		return fmt.Errorf("%w: missing product ID", ErrInvalidAnalysis)
	}
	switch a.Status {
	case model.VisionPending, model.VisionProcessing, model.VisionCompleted, model.VisionFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidAnalysis, a.Status)
	}
	return nil
}

func validateTiers(tiers []model.Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: tiers", ErrNilParameter)
	}
	for _, t := range tiers {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown tier %q", ErrInvalidAssignment, t)
		}
	}
	return nil
}
