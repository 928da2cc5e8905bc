package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/model"
)

// ClassifyRequest is the body of POST /archive/classify. Without product
// ids the unresolved ARCHIVE bucket is classified.
type ClassifyRequest struct {
	SkipClassified *bool    `json:"skip_classified"`
	ProductIDs     []string `json:"product_ids"`
	Concurrency    int      `json:"concurrency"`
	ForceRescan    bool     `json:"force_rescan"`
}

// RescanRequest is the body of POST /archive/rescan.
type RescanRequest struct {
	StaleBefore *time.Time `json:"stale_before"`
	Offset      int        `json:"offset"`
	Limit       int        `json:"limit"`
	Concurrency int        `json:"concurrency"`
	ForceRescan bool       `json:"force_rescan"`
}

// VisionRequest is the body of POST /vision/analyze. Without product ids
// the whole catalogue is considered, capped at Limit when positive.
type VisionRequest struct {
	ProductIDs  []string `json:"product_ids"`
	Limit       int      `json:"limit"`
	Concurrency int      `json:"concurrency"`
	Force       bool     `json:"force"`
}

// RebalanceResponse summarizes a rebalance.
type RebalanceResponse struct {
	Plan   *engine.Plan `json:"plan"`
	Moved  int          `json:"moved"`
	DryRun bool         `json:"dry_run"`
}

// CountsResponse is the archive population per category.
type CountsResponse struct {
	Counts map[model.Tier]int `json:"counts"`
	Total  int                `json:"total"`
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) rebalance(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: dry_run must be a boolean", errBadRequest))
			return
		}
		dryRun = parsed
	}

	plan, err := h.rebalancer.Run(r.Context(), dryRun)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, RebalanceResponse{
		Plan:   plan,
		Moved:  plan.Moved(),
		DryRun: dryRun,
	})
}

func (h *handler) classifyArchive(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ctx := r.Context()
	products, err := h.archiveCandidates(ctx, req.ProductIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	skip := true
	if req.SkipClassified != nil {
		skip = *req.SkipClassified
	}
	job, err := h.archive.Start(detach(ctx), engine.ClassifyRequest{
		Products:       products,
		SkipClassified: skip,
		ForceRescan:    req.ForceRescan,
		Concurrency:    req.Concurrency,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.stream(w, r, job)
}

func (h *handler) archiveCandidates(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) > 0 {
		return engine.RequestedProducts(ctx, h.store, ids)
	}

	unresolved, err := h.store.QueryByTier(ctx, model.TierArchive)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive bucket: %w", err)
	}
	if len(unresolved) == 0 {
		return nil, nil
	}
	bucket := make([]string, len(unresolved))
	for i, a := range unresolved {
		bucket[i] = a.ProductID
	}
	products, err := h.store.GetProductsByIDs(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return products, nil
}

func (h *handler) rescanArchive(w http.ResponseWriter, r *http.Request) {
	var req RescanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	job, err := h.archive.StartRescan(detach(r.Context()), engine.RescanRequest{
		StaleBefore: req.StaleBefore,
		Offset:      req.Offset,
		Limit:       req.Limit,
		Concurrency: req.Concurrency,
		ForceRescan: req.ForceRescan,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.stream(w, r, job)
}

func (h *handler) archiveCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByTiers(r.Context(), model.ArchiveTiers())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := CountsResponse{Counts: make(map[model.Tier]int, len(counts))}
	for _, t := range model.ArchiveTiers() {
		resp.Counts[t] = counts[t]
		resp.Total += counts[t]
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *handler) analyzeVision(w http.ResponseWriter, r *http.Request) {
	var req VisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Limit < 0 {
		writeError(w, h.logger, fmt.Errorf("%w: limit must not be negative", errBadRequest))
		return
	}

	ctx := r.Context()
	var (
		products []model.Product
		err      error
	)
	if len(req.ProductIDs) > 0 {
		products, err = engine.RequestedProducts(ctx, h.store, req.ProductIDs)
	} else {
		products, err = h.store.GetProducts(ctx)
		if err != nil {
			err = fmt.Errorf("failed to load products: %w", err)
		}
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Limit > 0 && len(products) > req.Limit {
		products = products[:req.Limit]
	}

	job, err := h.vision.Start(detach(ctx), engine.VisionRequest{
		Products:    products,
		Force:       req.Force,
		Concurrency: req.Concurrency,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.stream(w, r, job)
}
